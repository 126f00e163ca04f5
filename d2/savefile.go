package d2

import (
	"bytes"
	"fmt"
	"os"

	"github.com/artcom-net/d2lib/internal/bitstream"
	"github.com/artcom-net/d2lib/internal/data"
)

// Save file constants.
const (
	saveMagic      = 0xAA55AA55
	saveHeaderSize = 765

	checksumOffset = 12
	checksumSize   = 4

	skillCount = 30
)

// Section markers, compared against their two raw bytes.
var (
	itemListMarker  = []byte("JM")
	skillsMarker    = []byte("if")
	mercItemsMarker = []byte("jf")
	golemItemMarker = []byte("kf")
	attrsMarker     = []byte("gf")
)

// SaveFile is a fully decoded character save (.d2s). All fields are set in
// one decode pass and must not be mutated afterwards.
type SaveFile struct {
	Version      uint32          `json:"version"`
	FileSize     uint32          `json:"file_size"`
	Checksum     uint32          `json:"checksum"`
	ActiveWeapon uint32          `json:"active_weapon"`
	Name         string          `json:"char_name"`
	Status       CharacterStatus `json:"char_status"`
	Progression  int             `json:"progression"`
	Class        CharacterClass  `json:"char_class"`
	Level        int             `json:"char_level"`
	LastPlayed   uint32          `json:"last_played"`

	HotKeys       []byte     `json:"-"`
	LeftSkill     uint32     `json:"lm_skill"`
	RightSkill    uint32     `json:"rm_skill"`
	AltLeftSkill  uint32     `json:"slm_skill"`
	AltRightSkill uint32     `json:"srm_skill"`
	Appearance    []byte     `json:"-"`
	Difficulty    Difficulty `json:"difficulty"`
	Town          Town       `json:"town"`
	MapID         uint32     `json:"map_id"`

	DeadMerc       bool   `json:"is_dead_merc"`
	MercID         uint32 `json:"merc_id"`
	MercNameID     int    `json:"merc_name_id"`
	MercType       int    `json:"merc_type"`
	MercExperience uint32 `json:"merc_experience"`

	Quests    []byte `json:"-"`
	Waypoints []byte `json:"-"`
	NPCIntro  []byte `json:"-"`

	Attributes map[Attribute]int `json:"attributes"`
	Skills     map[int]int       `json:"skills"`

	Items       []*Item `json:"items"`
	CorpseItems []*Item `json:"corpse_items,omitempty"`
	MercItems   []*Item `json:"merc_items,omitempty"`
	GolemItem   *Item   `json:"golem_item,omitempty"`
}

// OpenSave reads and decodes a character save file from disk.
func OpenSave(path string) (*SaveFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sf, err := DecodeSave(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sf, nil
}

// DecodeSave decodes a character save from an in-memory buffer. On any
// fatal error no partial result is returned.
func DecodeSave(raw []byte) (*SaveFile, error) {
	d := &saveDecoder{
		r:      bitstream.NewReader(raw),
		raw:    raw,
		tables: data.Tables(),
	}
	sf := &SaveFile{}
	if err := d.readHeader(sf); err != nil {
		return nil, err
	}
	var err error
	if sf.Attributes, err = d.readAttributes(); err != nil {
		return nil, err
	}
	if sf.Skills, err = d.readSkills(sf.Class); err != nil {
		return nil, err
	}
	if sf.Items, err = d.readItemList(); err != nil {
		return nil, err
	}
	if sf.CorpseItems, err = d.readCorpseItems(); err != nil {
		return nil, err
	}
	if sf.Status.IsExpansion() {
		if sf.MercItems, err = d.readMercItems(sf.MercID); err != nil {
			return nil, err
		}
		if sf.Class == Necromancer {
			if sf.GolemItem, err = d.readGolemItem(); err != nil {
				return nil, err
			}
		}
	}
	return sf, nil
}

type saveDecoder struct {
	r      *bitstream.Reader
	raw    []byte
	tables *data.Storage
}

// readHeader decodes the fixed 765-byte header and verifies the magic,
// size and checksum fields.
func (d *saveDecoder) readHeader(sf *SaveFile) error {
	magic, err := d.r.ReadUint32()
	if err != nil {
		return err
	}
	if magic != saveMagic {
		return &FormatError{
			Section: "save header",
			Offset:  0,
			Msg:     fmt.Sprintf("bad signature 0x%08X", magic),
		}
	}
	if sf.Version, err = d.r.ReadUint32(); err != nil {
		return err
	}
	if sf.FileSize, err = d.r.ReadUint32(); err != nil {
		return err
	}
	if sf.FileSize < saveHeaderSize {
		return &FormatError{
			Section: "save header",
			Offset:  8,
			Msg:     fmt.Sprintf("invalid file size %d", sf.FileSize),
		}
	}
	if int(sf.FileSize) > len(d.raw) {
		return &TruncatedDataError{
			Offset: len(d.raw),
			Want:   (int(sf.FileSize) - len(d.raw)) * 8,
			Have:   0,
		}
	}
	if sf.Checksum, err = d.r.ReadUint32(); err != nil {
		return err
	}
	if sum := saveChecksum(d.raw[:sf.FileSize]); sum != sf.Checksum {
		return &FormatError{
			Section: "save header",
			Offset:  checksumOffset,
			Msg:     fmt.Sprintf("checksum mismatch: stored 0x%08X, computed 0x%08X", sf.Checksum, sum),
		}
	}

	if sf.ActiveWeapon, err = d.r.ReadUint32(); err != nil {
		return err
	}
	name, err := d.r.ReadBytes(16)
	if err != nil {
		return err
	}
	if sf.Name, err = decodeName(bytes.TrimRight(name, "\x00")); err != nil {
		return err
	}

	status, err := d.r.ReadUint8()
	if err != nil {
		return err
	}
	sf.Status = CharacterStatus(status)

	progression, err := d.r.ReadUint8()
	if err != nil {
		return err
	}
	sf.Progression = int(progression)
	if err := d.r.Skip(2); err != nil {
		return err
	}

	class, err := d.r.ReadUint8()
	if err != nil {
		return err
	}
	sf.Class = CharacterClass(class)
	if !sf.Class.Valid() {
		return &FormatError{
			Section: "save header",
			Offset:  40,
			Msg:     fmt.Sprintf("invalid class code %d", class),
		}
	}
	if err := d.r.Skip(2); err != nil {
		return err
	}

	level, err := d.r.ReadUint8()
	if err != nil {
		return err
	}
	sf.Level = int(level)
	if err := d.r.Skip(4); err != nil {
		return err
	}
	if sf.LastPlayed, err = d.r.ReadUint32(); err != nil {
		return err
	}
	if err := d.r.Skip(4); err != nil {
		return err
	}

	if sf.HotKeys, err = d.r.ReadBytes(64); err != nil {
		return err
	}
	for _, dst := range []*uint32{
		&sf.LeftSkill, &sf.RightSkill, &sf.AltLeftSkill, &sf.AltRightSkill,
	} {
		if *dst, err = d.r.ReadUint32(); err != nil {
			return err
		}
	}
	if sf.Appearance, err = d.r.ReadBytes(32); err != nil {
		return err
	}

	// One byte per difficulty; bit 7 marks the active one, the low bits
	// hold the current act town.
	diff, err := d.r.ReadBytes(3)
	if err != nil {
		return err
	}
	for i, b := range diff {
		if b&0x80 != 0 {
			sf.Difficulty = Difficulty(i)
			sf.Town = Town(b & 0x07)
		}
	}

	if sf.MapID, err = d.r.ReadUint32(); err != nil {
		return err
	}
	if err := d.r.Skip(2); err != nil {
		return err
	}
	deadMerc, err := d.r.ReadUint16()
	if err != nil {
		return err
	}
	sf.DeadMerc = deadMerc != 0
	if sf.MercID, err = d.r.ReadUint32(); err != nil {
		return err
	}
	nameID, err := d.r.ReadUint16()
	if err != nil {
		return err
	}
	sf.MercNameID = int(nameID)
	mercType, err := d.r.ReadUint16()
	if err != nil {
		return err
	}
	sf.MercType = int(mercType)
	if sf.MercExperience, err = d.r.ReadUint32(); err != nil {
		return err
	}
	if err := d.r.Skip(144); err != nil {
		return err
	}
	if sf.Quests, err = d.r.ReadBytes(298); err != nil {
		return err
	}
	if sf.Waypoints, err = d.r.ReadBytes(81); err != nil {
		return err
	}
	if sf.NPCIntro, err = d.r.ReadBytes(51); err != nil {
		return err
	}
	return nil
}

// readAttributes decodes the bit-packed attribute block: 9-bit attribute
// ids with table-driven value widths, terminated by 0x1FF. Same loop shape
// as the item affix list.
func (d *saveDecoder) readAttributes() (map[Attribute]int, error) {
	if err := d.expectMarker(attrsMarker, "attributes"); err != nil {
		return nil, err
	}
	attrs := make(map[Attribute]int, len(attributeBits))
	for id := Strength; id <= StashedGold; id++ {
		attrs[id] = 0
	}
	for n := 0; ; n++ {
		if n == maxAffixes {
			return nil, &FormatError{
				Section: "attributes",
				Offset:  d.r.BytePos(),
				Msg:     "attribute list terminator missing",
			}
		}
		id, err := d.r.ReadBits(9)
		if err != nil {
			return nil, err
		}
		if id == affixTerminator {
			break
		}
		attr := Attribute(id)
		width, ok := attributeBits[attr]
		if !ok {
			return nil, &FormatError{
				Section: "attributes",
				Offset:  d.r.BytePos(),
				Msg:     fmt.Sprintf("unknown attribute id %d", id),
			}
		}
		value, err := d.r.ReadBits(width)
		if err != nil {
			return nil, err
		}
		v := int(value)
		if fixedPointAttrs[attr] {
			v >>= 8
		}
		attrs[attr] = v
	}
	d.r.AlignToByte()
	return attrs, nil
}

// readSkills decodes the fixed 30-byte skill block. Levels are keyed by
// absolute skill id, offset by the character class.
func (d *saveDecoder) readSkills(class CharacterClass) (map[int]int, error) {
	if err := d.expectMarker(skillsMarker, "skills"); err != nil {
		return nil, err
	}
	offset, ok := d.tables.SkillOffset(int(class))
	if !ok {
		return nil, &FormatError{
			Section: "skills",
			Offset:  d.r.BytePos(),
			Msg:     fmt.Sprintf("no skill offset for class %d", class),
		}
	}
	skills := make(map[int]int, skillCount)
	for i := 0; i < skillCount; i++ {
		level, err := d.r.ReadUint8()
		if err != nil {
			return nil, err
		}
		skills[offset+i] = int(level)
	}
	return skills, nil
}

// readItemList decodes a "JM"-headed item list: marker, 16-bit count, then
// that many top-level item records. Socketed children are consumed by
// their host record.
func (d *saveDecoder) readItemList() ([]*Item, error) {
	if err := d.expectMarker(itemListMarker, "item list"); err != nil {
		return nil, err
	}
	count, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	return decodeItems(d.r, d.tables, int(count))
}

// readCorpseItems decodes the corpse section: marker, a dead flag, and a
// full item list when the character has a corpse.
func (d *saveDecoder) readCorpseItems() ([]*Item, error) {
	marker, err := d.r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	isDead, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if isDead == 0 || !bytes.Equal(marker, itemListMarker) {
		return nil, nil
	}
	if err := d.r.Skip(12); err != nil {
		return nil, err
	}
	return d.readItemList()
}

// readMercItems decodes the mercenary item list, present in expansion
// saves when a mercenary has been hired.
func (d *saveDecoder) readMercItems(mercID uint32) ([]*Item, error) {
	marker, err := d.r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(marker, mercItemsMarker) || mercID == 0 {
		return nil, nil
	}
	return d.readItemList()
}

// readGolemItem decodes the iron golem source item of a necromancer.
func (d *saveDecoder) readGolemItem() (*Item, error) {
	marker, err := d.r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	hasGolem, err := d.r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if hasGolem == 0 || !bytes.Equal(marker, golemItemMarker) {
		return nil, nil
	}
	dec := &itemDecoder{r: d.r, tables: d.tables}
	return dec.decodeItem()
}

func (d *saveDecoder) expectMarker(want []byte, section string) error {
	offset := d.r.BytePos()
	got, err := d.r.ReadBytes(2)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return &FormatError{
			Section: section,
			Offset:  offset,
			Msg:     fmt.Sprintf("bad section marker %q, want %q", got, want),
		}
	}
	return nil
}

// decodeItems reads count top-level item records. Before each record it
// checks the remaining buffer against the minimum record size so a short
// list surfaces as truncation rather than a signature error.
func decodeItems(r *bitstream.Reader, tables *data.Storage, count int) ([]*Item, error) {
	const minItemBits = 111 // compact record size
	dec := &itemDecoder{r: r, tables: tables}
	items := make([]*Item, 0, count)
	for i := 0; i < count; i++ {
		if r.RemainingBits() < minItemBits {
			return nil, &TruncatedDataError{
				Offset:    r.BytePos(),
				BitOffset: r.BitPos(),
				Want:      minItemBits,
				Have:      r.RemainingBits(),
			}
		}
		item, err := dec.decodeItem()
		if err != nil {
			return nil, fmt.Errorf("item %d of %d: %w", i+1, count, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// saveChecksum recomputes the rolling header checksum with the stored
// checksum field zeroed.
func saveChecksum(buf []byte) uint32 {
	var sum int32
	for i, b := range buf {
		v := int32(b)
		if i >= checksumOffset && i < checksumOffset+checksumSize {
			v = 0
		}
		var carry int32
		if sum < 0 {
			carry = 1
		}
		sum = sum<<1 + v + carry
	}
	return uint32(sum)
}
