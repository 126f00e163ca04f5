package d2

import (
	"bytes"
	"fmt"
	"os"

	"github.com/artcom-net/d2lib/internal/bitstream"
	"github.com/artcom-net/d2lib/internal/data"
)

// PlugY stash constants.
const (
	personalStashMagic = 0x4D545343 // "CSTM"
	sharedStashMagic   = 0x00535353 // "SSS\0"

	stashVersion1 = 0x3130 // "01"
	stashVersion2 = 0x3230 // "02"
)

var pageMarker = []byte("ST")

// PageFlags are the per-page flag bits of a stash page header.
type PageFlags struct {
	Shared    bool `json:"is_shared"`
	Index     bool `json:"is_index"`
	MainIndex bool `json:"is_main_index"`
	Reserved  bool `json:"is_reserved"`
}

// StashPage is one page of a stash file: optional flags and name plus an
// ordered item list.
type StashPage struct {
	Number int       `json:"page"`
	Flags  PageFlags `json:"flags"`
	Name   string    `json:"name,omitempty"`
	Items  []*Item   `json:"items"`
}

// PersonalStash is a decoded PlugY personal stash file (.d2x).
type PersonalStash struct {
	Version   uint16       `json:"version"`
	PageCount int          `json:"page_count"`
	Pages     []*StashPage `json:"stash"`
}

// SharedStash is a decoded PlugY shared stash file (.sss).
type SharedStash struct {
	Version    uint16       `json:"version"`
	SharedGold uint32       `json:"shared_gold,omitempty"`
	PageCount  int          `json:"page_count"`
	Pages      []*StashPage `json:"stash"`
}

// OpenPersonalStash reads and decodes a personal stash file from disk.
func OpenPersonalStash(path string) (*PersonalStash, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ps, err := DecodePersonalStash(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// DecodePersonalStash decodes a personal stash from an in-memory buffer.
func DecodePersonalStash(raw []byte) (*PersonalStash, error) {
	d := &stashDecoder{r: bitstream.NewReader(raw), tables: data.Tables()}

	magic, err := d.r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if magic != personalStashMagic {
		return nil, &FormatError{
			Section: "personal stash header",
			Offset:  0,
			Msg:     fmt.Sprintf("bad signature 0x%08X", magic),
		}
	}
	version, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if version != stashVersion1 {
		return nil, &FormatError{
			Section: "personal stash header",
			Offset:  4,
			Msg:     fmt.Sprintf("unsupported version 0x%04X", version),
		}
	}
	if err := d.r.Skip(4); err != nil {
		return nil, err
	}
	pageCount, err := d.r.ReadUint32()
	if err != nil {
		return nil, err
	}

	pages, err := d.readPages(int(pageCount))
	if err != nil {
		return nil, err
	}
	return &PersonalStash{
		Version:   version,
		PageCount: int(pageCount),
		Pages:     pages,
	}, nil
}

// OpenSharedStash reads and decodes a shared stash file from disk.
func OpenSharedStash(path string) (*SharedStash, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ss, err := DecodeSharedStash(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ss, nil
}

// DecodeSharedStash decodes a shared stash from an in-memory buffer.
// Version 02 files carry a shared gold amount before the page count.
func DecodeSharedStash(raw []byte) (*SharedStash, error) {
	d := &stashDecoder{r: bitstream.NewReader(raw), tables: data.Tables()}

	magic, err := d.r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if magic != sharedStashMagic {
		return nil, &FormatError{
			Section: "shared stash header",
			Offset:  0,
			Msg:     fmt.Sprintf("bad signature 0x%08X", magic),
		}
	}
	version, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}

	ss := &SharedStash{Version: version}
	switch version {
	case stashVersion1:
	case stashVersion2:
		if ss.SharedGold, err = d.r.ReadUint32(); err != nil {
			return nil, err
		}
	default:
		return nil, &FormatError{
			Section: "shared stash header",
			Offset:  4,
			Msg:     fmt.Sprintf("unsupported version 0x%04X", version),
		}
	}
	pageCount, err := d.r.ReadUint32()
	if err != nil {
		return nil, err
	}
	ss.PageCount = int(pageCount)

	if ss.Pages, err = d.readPages(ss.PageCount); err != nil {
		return nil, err
	}
	return ss, nil
}

type stashDecoder struct {
	r      *bitstream.Reader
	tables *data.Storage
}

// readPages decodes the declared number of pages. Each page is an "ST"
// marker, optional flags and name, then a "JM"-headed item list.
func (d *stashDecoder) readPages(count int) ([]*StashPage, error) {
	pages := make([]*StashPage, 0, count)
	for n := 0; n < count; n++ {
		page, err := d.readPage(n + 1)
		if err != nil {
			return nil, fmt.Errorf("stash page %d of %d: %w", n+1, count, err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (d *stashDecoder) readPage(number int) (*StashPage, error) {
	offset := d.r.BytePos()
	marker, err := d.r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(marker, pageMarker) {
		return nil, &FormatError{
			Section: "stash page",
			Offset:  offset,
			Msg:     fmt.Sprintf("bad page marker %q", marker),
		}
	}

	page := &StashPage{Number: number}

	// The next word is either the item list marker (bare page) or the
	// first half of the flag field, followed by a page name.
	word, err := d.r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(word, itemListMarker) {
		rest, err := d.r.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		flags := uint32(word[0])<<24 | uint32(word[1])<<16 |
			uint32(rest[0])<<8 | uint32(rest[1])
		page.Flags = PageFlags{
			Shared:    flags>>24&1 != 0,
			Index:     flags>>16&1 != 0,
			MainIndex: flags>>8&1 != 0,
			Reserved:  flags&1 != 0,
		}
		if page.Name, err = d.readPageName(); err != nil {
			return nil, err
		}
		if word, err = d.r.ReadBytes(2); err != nil {
			return nil, err
		}
		if !bytes.Equal(word, itemListMarker) {
			return nil, &FormatError{
				Section: "stash page",
				Offset:  d.r.BytePos() - 2,
				Msg:     fmt.Sprintf("bad item list marker %q", word),
			}
		}
	}

	itemCount, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if page.Items, err = decodeItems(d.r, d.tables, int(itemCount)); err != nil {
		return nil, err
	}
	return page, nil
}

// readPageName reads the NUL-terminated page name.
func (d *stashDecoder) readPageName() (string, error) {
	var raw []byte
	for {
		if len(raw) == maxNameLength {
			return "", &FormatError{
				Section: "stash page",
				Offset:  d.r.BytePos(),
				Msg:     fmt.Sprintf("page name exceeds %d characters, terminator missing", maxNameLength),
			}
		}
		b, err := d.r.ReadUint8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		raw = append(raw, b)
	}
	return decodeName(raw)
}
