package d2

import (
	"bytes"
	"errors"
	"testing"

	"github.com/artcom-net/d2lib/internal/bitstream"
	"github.com/artcom-net/d2lib/internal/data"
)

func stashPages() []pageSpec {
	return []pageSpec{
		{}, // bare page, no flags or name
		{
			hasHeader: true,
			flags:     1<<24 | 1,
			name:      "Runes",
			items: []itemSpec{
				{identified: true, simple: true, code: "r07"},
				{identified: true, simple: true, code: "r33"},
				{
					identified: true,
					code:       "rin",
					id:         21,
					level:      5,
					quality:    QualityMagic,
					prefixID:   41,
					suffixID:   75,
					affixes:    []affixSpec{{0, []int{10}}},
				},
			},
		},
	}
}

func TestDecodePersonalStash(t *testing.T) {
	raw := buildPersonalStash(t, stashPages())

	ps, err := DecodePersonalStash(raw)
	if err != nil {
		t.Fatalf("DecodePersonalStash: %v", err)
	}
	if ps.Version != stashVersion1 {
		t.Errorf("Version = %#x", ps.Version)
	}
	if ps.PageCount != 2 || len(ps.Pages) != 2 {
		t.Fatalf("pages = %d declared, %d decoded", ps.PageCount, len(ps.Pages))
	}

	first := ps.Pages[0]
	if first.Number != 1 || first.Name != "" || len(first.Items) != 0 {
		t.Errorf("page 1 = %+v", first)
	}
	if first.Flags != (PageFlags{}) {
		t.Errorf("page 1 flags = %+v", first.Flags)
	}

	second := ps.Pages[1]
	if second.Number != 2 || second.Name != "Runes" {
		t.Errorf("page 2 = %d %q", second.Number, second.Name)
	}
	if !second.Flags.Shared || !second.Flags.Reserved || second.Flags.Index {
		t.Errorf("page 2 flags = %+v", second.Flags)
	}
	if len(second.Items) != 3 {
		t.Fatalf("page 2 items = %d, want 3", len(second.Items))
	}
	if second.Items[1].BaseName != "Zod Rune" {
		t.Errorf("item = %q", second.Items[1].BaseName)
	}
	if second.Items[2].Name != "King's of Strength" {
		t.Errorf("ring name = %q", second.Items[2].Name)
	}
}

func TestDecodeSharedStashV1(t *testing.T) {
	raw := buildSharedStash(t, stashVersion1, 0, stashPages())

	ss, err := DecodeSharedStash(raw)
	if err != nil {
		t.Fatalf("DecodeSharedStash: %v", err)
	}
	if ss.Version != stashVersion1 || ss.SharedGold != 0 {
		t.Errorf("header = %#x gold %d", ss.Version, ss.SharedGold)
	}
	if len(ss.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(ss.Pages))
	}
}

func TestDecodeSharedStashV2Gold(t *testing.T) {
	raw := buildSharedStash(t, stashVersion2, 2500000, stashPages())

	ss, err := DecodeSharedStash(raw)
	if err != nil {
		t.Fatalf("DecodeSharedStash: %v", err)
	}
	if ss.Version != stashVersion2 {
		t.Errorf("Version = %#x", ss.Version)
	}
	if ss.SharedGold != 2500000 {
		t.Errorf("SharedGold = %d", ss.SharedGold)
	}
	if len(ss.Pages) != 2 || len(ss.Pages[1].Items) != 3 {
		t.Errorf("pages = %+v", ss.Pages)
	}
}

func TestDecodePersonalStashBadMagic(t *testing.T) {
	raw := buildPersonalStash(t, nil)
	raw[0] ^= 0xFF

	_, err := DecodePersonalStash(raw)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func TestDecodeSharedStashBadVersion(t *testing.T) {
	raw := buildSharedStash(t, stashVersion1, 0, nil)
	raw[4] = 0x33 // "03"

	_, err := DecodeSharedStash(raw)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func TestDecodeStashBadPageMarker(t *testing.T) {
	raw := buildPersonalStash(t, []pageSpec{{}})
	raw[14] = 'X' // first page marker byte

	_, err := DecodePersonalStash(raw)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
	if fe.Section != "stash page" {
		t.Errorf("section = %q", fe.Section)
	}
}

func TestReadPageNameMissingTerminator(t *testing.T) {
	raw := bytes.Repeat([]byte{'A'}, maxNameLength+8)

	d := &stashDecoder{r: bitstream.NewReader(raw), tables: data.Tables()}
	_, err := d.readPageName()
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
	if fe.Section != "stash page" {
		t.Errorf("section = %q", fe.Section)
	}
}

func TestDecodePersonalStashTruncated(t *testing.T) {
	raw := buildPersonalStash(t, stashPages())
	for n := 0; n < len(raw); n++ {
		_, err := DecodePersonalStash(raw[:n])
		if err == nil {
			t.Fatalf("prefix %d: decode succeeded", n)
		}
		var te *TruncatedDataError
		if !errors.As(err, &te) {
			t.Fatalf("prefix %d: err = %v, want TruncatedDataError", n, err)
		}
	}
}

func TestDecodeSharedStashTruncated(t *testing.T) {
	raw := buildSharedStash(t, stashVersion2, 100, stashPages())
	for n := 0; n < len(raw); n++ {
		_, err := DecodeSharedStash(raw[:n])
		if err == nil {
			t.Fatalf("prefix %d: decode succeeded", n)
		}
		var te *TruncatedDataError
		if !errors.As(err, &te) {
			t.Fatalf("prefix %d: err = %v, want TruncatedDataError", n, err)
		}
	}
}
