package d2

import (
	"fmt"

	"github.com/artcom-net/d2lib/internal/bitstream"
)

// FormatError reports a structural problem in the file: a bad magic
// signature, version, checksum or section marker. It is fatal; no partial
// result is returned.
type FormatError struct {
	Section string
	Offset  int // byte offset where the check failed
	Msg     string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Section, e.Offset, e.Msg)
}

// TruncatedDataError reports a read past the end of the buffer. It carries
// the byte and bit offset of the cursor at the point of failure.
type TruncatedDataError = bitstream.TruncatedError

// UnknownPropertyError reports a magic property id absent from the property
// table. Fatal: without the table entry the field width is undiscoverable
// and every later read would desynchronize.
type UnknownPropertyError struct {
	ID        int
	Offset    int
	BitOffset int
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("unknown magic property id %d at offset %d+%db",
		e.ID, e.Offset, e.BitOffset)
}
