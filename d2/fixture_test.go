package d2

import (
	"encoding/binary"
	"testing"

	"github.com/artcom-net/d2lib/internal/data"
)

// bitWriter is the encode-side mirror of bitstream.Reader, used to build
// test fixtures: values are written LSB-first into a growing byte slice.
type bitWriter struct {
	buf []byte
	pos int // absolute bit position
}

func (w *bitWriter) writeBits(v uint32, n int) {
	for i := 0; i < n; i++ {
		idx := w.pos >> 3
		if idx == len(w.buf) {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 != 0 {
			w.buf[idx] |= 1 << uint(w.pos&7)
		}
		w.pos++
	}
}

func (w *bitWriter) writeBit(b bool) {
	if b {
		w.writeBits(1, 1)
	} else {
		w.writeBits(0, 1)
	}
}

func (w *bitWriter) writeBytes(b []byte) {
	for _, c := range b {
		w.writeBits(uint32(c), 8)
	}
}

func (w *bitWriter) writeUint16(v uint16) {
	w.writeBits(uint32(v), 16)
}

func (w *bitWriter) writeUint32(v uint32) {
	w.writeBits(v, 32)
}

func (w *bitWriter) align() {
	w.pos = (w.pos + 7) &^ 7
}

// write7String writes a NUL-terminated string of 7-bit character codes,
// the encoding of ear and personalization names.
func (w *bitWriter) write7String(s string) {
	for _, c := range []byte(s) {
		w.writeBits(uint32(c&0x7F), 7)
	}
	w.writeBits(0, 7)
}

// affixSpec is one magic property to encode. Values are display values; the
// encoder adds the property bias back before writing.
type affixSpec struct {
	id     int
	values []int
}

func encodeAffixList(t *testing.T, w *bitWriter, affixes []affixSpec) {
	t.Helper()
	tables := data.Tables()
	for _, a := range affixes {
		desc := tables.Property(a.id)
		if desc == nil {
			t.Fatalf("fixture references unknown property %d", a.id)
		}
		if len(a.values) != len(desc.Bits) {
			t.Fatalf("property %d: %d values, want %d", a.id, len(a.values), len(desc.Bits))
		}
		w.writeBits(uint32(a.id), 9)
		for i, v := range a.values {
			w.writeBits(uint32(v+desc.Bias), desc.Bits[i])
		}
	}
	w.writeBits(affixTerminator, 9)
}

// itemSpec carries every field of an item record the encoder can emit.
// Zero values produce a plain simple item once simple is set.
type itemSpec struct {
	identified   bool
	socketed     bool
	isNew        bool
	ear          bool
	startItem    bool
	simple       bool
	ethereal     bool
	personalized bool
	runeword     bool
	version      int
	location     int
	equipped     int
	posX, posY   int
	panel        int
	code         string
	inserted     int

	earClass CharacterClass
	earLevel int
	earName  string

	id          uint32
	level       int
	quality     Quality
	prefixID    int
	suffixID    int
	setID       int
	rareFirst   int
	rareSecond  int
	rareAffixes []int
	uniqueID    int
	runewordID  int
	persName    string
	defense     int
	maxDur      int
	curDur      int
	quantity    int
	socketCount int
	setExtraID  int

	affixes   []affixSpec
	setGroups [][]affixSpec
	rwAffixes []affixSpec
	children  []itemSpec
}

func encodeItem(t *testing.T, w *bitWriter, spec itemSpec) {
	t.Helper()
	encodeItemRecord(t, w, spec)
	w.align()
	for _, child := range spec.children {
		encodeItem(t, w, child)
	}
}

func encodeItemRecord(t *testing.T, w *bitWriter, spec itemSpec) {
	t.Helper()
	w.writeBits(itemMagic, 16)

	w.writeBits(0, 4)
	w.writeBit(spec.identified)
	w.writeBits(0, 6)
	w.writeBit(spec.socketed)
	w.writeBits(0, 1)
	w.writeBit(spec.isNew)
	w.writeBits(0, 2)
	w.writeBit(spec.ear)
	w.writeBit(spec.startItem)
	w.writeBits(0, 3)
	w.writeBit(spec.simple)
	w.writeBit(spec.ethereal)
	w.writeBits(0, 1)
	w.writeBit(spec.personalized)
	w.writeBits(0, 1)
	w.writeBit(spec.runeword)
	w.writeBits(0, 5)
	w.writeBits(uint32(spec.version), 8)
	w.writeBits(0, 2)
	w.writeBits(uint32(spec.location), 3)
	w.writeBits(uint32(spec.equipped), 4)
	w.writeBits(uint32(spec.posX), 4)
	w.writeBits(uint32(spec.posY), 3)
	w.writeBits(0, 1)
	w.writeBits(uint32(spec.panel), 3)

	if spec.ear {
		w.writeBits(uint32(spec.earClass), 3)
		w.writeBits(uint32(spec.earLevel), 7)
		w.write7String(spec.earName)
		return
	}

	code := spec.code
	for len(code) < 4 {
		code += " "
	}
	w.writeBytes([]byte(code[:4]))
	w.writeBits(uint32(spec.inserted), 3)

	if spec.simple {
		return
	}

	tables := data.Tables()
	_, cat, _ := tables.BaseItem(spec.code)

	w.writeUint32(spec.id)
	w.writeBits(uint32(spec.level), 7)
	w.writeBits(uint32(spec.quality), 4)
	w.writeBits(0, 1) // no picture
	w.writeBits(0, 1) // not class specific

	switch spec.quality {
	case QualityLow, QualitySuperior:
		w.writeBits(0, 3)
	case QualityNormal:
	case QualityMagic:
		w.writeBits(uint32(spec.prefixID), 11)
		w.writeBits(uint32(spec.suffixID), 11)
	case QualitySet:
		w.writeBits(uint32(spec.setID), 12)
	case QualityUnique:
		w.writeBits(uint32(spec.uniqueID), 12)
	case QualityRare, QualityCrafted:
		w.writeBits(uint32(spec.rareFirst), 8)
		w.writeBits(uint32(spec.rareSecond), 8)
		for i := 0; i < 6; i++ {
			if i < len(spec.rareAffixes) {
				w.writeBits(1, 1)
				w.writeBits(uint32(spec.rareAffixes[i]), 11)
			} else {
				w.writeBits(0, 1)
			}
		}
	default:
		t.Fatalf("fixture has no encoding for quality %d", spec.quality)
	}

	if spec.runeword {
		w.writeBits(uint32(spec.runewordID), 12)
		w.writeBits(0, 4)
	}
	if spec.personalized {
		w.write7String(spec.persName)
	}
	if spec.code == "tbk" || spec.code == "ibk" {
		w.writeBits(0, 5)
	}
	w.writeBits(0, 1) // timestamp

	if cat == data.CategoryArmor || cat == data.CategoryShield {
		w.writeBits(uint32(spec.defense+10), 11)
	}
	if cat != data.CategoryMisc {
		w.writeBits(uint32(spec.maxDur), 8)
		if spec.maxDur > 0 {
			w.writeBits(uint32(spec.curDur), 8)
			w.writeBits(0, 1)
		}
	}
	if tables.IsQuantitative(spec.code) {
		w.writeBits(uint32(spec.quantity), 9)
	}
	if spec.socketed {
		w.writeBits(uint32(spec.socketCount), 4)
	}
	if spec.quality == QualitySet {
		w.writeBits(uint32(spec.setExtraID), 5)
	}

	encodeAffixList(t, w, spec.affixes)
	for _, group := range spec.setGroups {
		encodeAffixList(t, w, group)
	}
	if spec.runeword {
		encodeAffixList(t, w, spec.rwAffixes)
	}
}

func encodeItemList(t *testing.T, w *bitWriter, items []itemSpec) {
	t.Helper()
	w.writeBytes(itemListMarker)
	w.writeUint16(uint16(len(items)))
	for _, it := range items {
		encodeItem(t, w, it)
	}
}

// attrValue is one attribute block entry. raw is the stream value, so
// fixed-point attributes take raw = value << 8.
type attrValue struct {
	id  Attribute
	raw uint32
}

type saveSpec struct {
	name   string
	class  CharacterClass
	level  int
	status CharacterStatus
	mercID uint32

	attrs  []attrValue
	skills [skillCount]byte

	items       []itemSpec
	hasCorpse   bool
	corpseItems []itemSpec
	mercItems   []itemSpec
	golemItem   *itemSpec
}

// buildSave assembles a complete, checksum-valid save file image.
func buildSave(t *testing.T, spec saveSpec) []byte {
	t.Helper()

	header := make([]byte, saveHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], saveMagic)
	binary.LittleEndian.PutUint32(header[4:], 96) // 1.10+ save version
	copy(header[20:36], spec.name)
	header[36] = byte(spec.status)
	header[40] = byte(spec.class)
	header[43] = byte(spec.level)
	header[168] = 0x80 // active difficulty: normal, act 1
	binary.LittleEndian.PutUint32(header[179:], spec.mercID)

	w := &bitWriter{buf: header, pos: len(header) * 8}

	w.writeBytes(attrsMarker)
	for _, a := range spec.attrs {
		width, ok := attributeBits[a.id]
		if !ok {
			t.Fatalf("fixture references unknown attribute %d", a.id)
		}
		w.writeBits(uint32(a.id), 9)
		w.writeBits(a.raw, width)
	}
	w.writeBits(affixTerminator, 9)
	w.align()

	w.writeBytes(skillsMarker)
	w.writeBytes(spec.skills[:])

	encodeItemList(t, w, spec.items)

	w.writeBytes(itemListMarker)
	if spec.hasCorpse {
		w.writeUint16(1)
		w.writeBytes(make([]byte, 12))
		encodeItemList(t, w, spec.corpseItems)
	} else {
		w.writeUint16(0)
	}

	if spec.status.IsExpansion() {
		w.writeBytes(mercItemsMarker)
		if spec.mercID != 0 {
			encodeItemList(t, w, spec.mercItems)
		}
		if spec.class == Necromancer {
			w.writeBytes(golemItemMarker)
			if spec.golemItem != nil {
				w.writeBits(1, 8)
				encodeItem(t, w, *spec.golemItem)
			} else {
				w.writeBits(0, 8)
			}
		}
	}

	raw := w.buf
	binary.LittleEndian.PutUint32(raw[8:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(raw[checksumOffset:], saveChecksum(raw))
	return raw
}

type pageSpec struct {
	hasHeader bool
	flags     uint32
	name      string
	items     []itemSpec
}

func encodePage(t *testing.T, w *bitWriter, spec pageSpec) {
	t.Helper()
	w.writeBytes(pageMarker)
	if spec.hasHeader {
		w.writeBytes([]byte{
			byte(spec.flags >> 24), byte(spec.flags >> 16),
			byte(spec.flags >> 8), byte(spec.flags),
		})
		w.writeBytes([]byte(spec.name))
		w.writeBits(0, 8)
	}
	encodeItemList(t, w, spec.items)
}

// buildPersonalStash assembles a PlugY .d2x image.
func buildPersonalStash(t *testing.T, pages []pageSpec) []byte {
	t.Helper()
	w := &bitWriter{}
	w.writeUint32(personalStashMagic)
	w.writeUint16(stashVersion1)
	w.writeUint32(0) // game version string, unused
	w.writeUint32(uint32(len(pages)))
	for _, p := range pages {
		encodePage(t, w, p)
	}
	return w.buf
}

// buildSharedStash assembles a PlugY .sss image. Version 02 images carry
// the shared gold amount.
func buildSharedStash(t *testing.T, version uint16, gold uint32, pages []pageSpec) []byte {
	t.Helper()
	w := &bitWriter{}
	w.writeUint32(sharedStashMagic)
	w.writeUint16(version)
	if version == stashVersion2 {
		w.writeUint32(gold)
	}
	w.writeUint32(uint32(len(pages)))
	for _, p := range pages {
		encodePage(t, w, p)
	}
	return w.buf
}
