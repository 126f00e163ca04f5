// Package bitstream implements the sub-byte cursor used by the save file
// decoders. The Diablo II item section packs fields at arbitrary bit widths
// with no byte alignment, least-significant-bit first within each byte.
package bitstream

import "fmt"

// TruncatedError reports a read that would run past the end of the buffer.
// It carries the cursor position so callers can report where the decode
// diverged.
type TruncatedError struct {
	Offset    int // byte offset of the cursor
	BitOffset int // bit offset within the current byte (0-7)
	Want      int // number of bits requested
	Have      int // number of bits left in the buffer
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("bitstream: truncated data: need %d bits at offset %d+%db, %d left",
		e.Want, e.Offset, e.BitOffset, e.Have)
}

// Reader consumes bits from an immutable byte slice. The cursor only moves
// forward; every read either succeeds fully or fails with *TruncatedError
// without advancing.
type Reader struct {
	buf []byte
	pos int // absolute bit position
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// ReadBits reads n bits (0 <= n <= 32), LSB-first within each byte, and
// returns them as an unsigned integer.
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("bitstream: invalid bit count %d", n)
	}
	if r.pos+n > len(r.buf)*8 {
		return 0, &TruncatedError{
			Offset:    r.pos / 8,
			BitOffset: r.pos % 8,
			Want:      n,
			Have:      len(r.buf)*8 - r.pos,
		}
	}
	var v uint32
	for i := 0; i < n; i++ {
		p := r.pos + i
		bit := (r.buf[p/8] >> (p % 8)) & 1
		v |= uint32(bit) << i
	}
	r.pos += n
	return v, nil
}

// ReadBytes reads n bytes through the bit path, so byte regions decode
// identically whether or not the cursor is aligned.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.pos+n*8 > len(r.buf)*8 {
		return nil, &TruncatedError{
			Offset:    r.pos / 8,
			BitOffset: r.pos % 8,
			Want:      n * 8,
			Have:      len(r.buf)*8 - r.pos,
		}
	}
	out := make([]byte, n)
	if r.pos%8 == 0 {
		copy(out, r.buf[r.pos/8:])
		r.pos += n * 8
		return out, nil
	}
	for i := range out {
		v, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// ReadUint8 reads one byte as an unsigned integer.
func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.ReadBits(8)
	return uint8(v), err
}

// ReadUint16 reads two bytes as a little-endian unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadBits(16)
	return uint16(v), err
}

// ReadUint32 reads four bytes as a little-endian unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	return r.ReadBits(32)
}

// Skip advances the cursor by n bytes without returning the data.
func (r *Reader) Skip(n int) error {
	if r.pos+n*8 > len(r.buf)*8 {
		return &TruncatedError{
			Offset:    r.pos / 8,
			BitOffset: r.pos % 8,
			Want:      n * 8,
			Have:      len(r.buf)*8 - r.pos,
		}
	}
	r.pos += n * 8
	return nil
}

// AlignToByte advances the cursor to the next byte boundary. Used only at
// section boundaries (end of an item record, end of the attribute block).
func (r *Reader) AlignToByte() {
	if rem := r.pos % 8; rem != 0 {
		r.pos += 8 - rem
	}
}

// RemainingBits reports how many bits are left in the buffer.
func (r *Reader) RemainingBits() int {
	return len(r.buf)*8 - r.pos
}

// BytePos returns the byte part of the cursor position.
func (r *Reader) BytePos() int { return r.pos / 8 }

// BitPos returns the bit part of the cursor position (0-7).
func (r *Reader) BitPos() int { return r.pos % 8 }

// Len returns the total buffer length in bytes.
func (r *Reader) Len() int { return len(r.buf) }
