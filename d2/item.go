package d2

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/artcom-net/d2lib/internal/bitstream"
	"github.com/artcom-net/d2lib/internal/data"
)

// Item record constants. "JM" read LSB-first through the bitstream.
const itemMagic = 0x4D4A

// affixTerminator is the reserved 9-bit property id ending an affix list.
const affixTerminator = 0x1FF

// maxAffixes bounds the affix loop so a corrupt or missing terminator
// becomes a reported error instead of a runaway parse.
const maxAffixes = 512

// maxNameLength bounds the NUL-terminated name loops the same way. Real
// names are at most 16 characters.
const maxNameLength = 256

// Quality is the rarity tier of an extended item. It selects which extra
// fields follow the tier code in the bitstream.
type Quality uint8

const (
	QualityLow      Quality = 0x01
	QualityNormal   Quality = 0x02
	QualitySuperior Quality = 0x03
	QualityMagic    Quality = 0x04
	QualitySet      Quality = 0x05
	QualityRare     Quality = 0x06
	QualityUnique   Quality = 0x07
	QualityCrafted  Quality = 0x08
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityNormal:
		return "normal"
	case QualitySuperior:
		return "superior"
	case QualityMagic:
		return "magic"
	case QualitySet:
		return "set"
	case QualityRare:
		return "rare"
	case QualityUnique:
		return "unique"
	case QualityCrafted:
		return "crafted"
	default:
		return fmt.Sprintf("quality(%d)", uint8(q))
	}
}

// Item locations.
const (
	LocStored   = 0x00
	LocEquipped = 0x01
	LocBelt     = 0x02
	LocCursor   = 0x04
	LocSocketed = 0x06
)

// Affix is one decoded magic property: the 9-bit id, the bias-corrected
// values in stream order, and the rendered display string.
type Affix struct {
	ID      int    `json:"id"`
	Values  []int  `json:"values"`
	Display string `json:"display"`
}

// Item is one decoded item record, including any socketed children.
type Item struct {
	// Compact fields, present on every item.
	Identified   bool   `json:"is_identified"`
	Socketed     bool   `json:"is_socketed"`
	New          bool   `json:"is_new"`
	Ear          bool   `json:"is_ear"`
	StartItem    bool   `json:"is_start_item"`
	Simple       bool   `json:"is_simple"`
	Ethereal     bool   `json:"is_ethereal"`
	Personalized bool   `json:"is_personalized"`
	Runeword     bool   `json:"is_runeword"`
	Version      int    `json:"version"`
	LocationID   int    `json:"location_id"`
	EquippedID   int    `json:"equipped_id"`
	PosX         int    `json:"pos_x"`
	PosY         int    `json:"pos_y"`
	PanelID      int    `json:"panel_id"`
	Code         string `json:"code"`
	BaseName     string `json:"base_name"`
	Category     string `json:"category"`

	// Ear items carry the victim's identity instead of a base code.
	EarClass CharacterClass `json:"ear_char_class,omitempty"`
	EarLevel int            `json:"ear_char_level,omitempty"`
	EarName  string         `json:"ear_char_name,omitempty"`

	// Extended fields, absent on simple items.
	ID               uint32  `json:"iid,omitempty"`
	Level            int     `json:"level,omitempty"`
	Quality          Quality `json:"quality,omitempty"`
	PictureID        int     `json:"pic_id,omitempty"`
	PrefixID         int     `json:"magic_prefix_id,omitempty"`
	SuffixID         int     `json:"magic_suffix_id,omitempty"`
	SetID            int     `json:"set_id,omitempty"`
	RareFirstID      int     `json:"rare_fname_id,omitempty"`
	RareSecondID     int     `json:"rare_sname_id,omitempty"`
	RareAffixIDs     []int   `json:"rare_affixes,omitempty"`
	UniqueID         int     `json:"unique_id,omitempty"`
	RunewordID       int     `json:"runeword_id,omitempty"`
	PersonalizedName string  `json:"personalized_name,omitempty"`
	DefenseRating    int     `json:"defense_rating,omitempty"`
	MaxDurability    int     `json:"max_durability,omitempty"`
	CurDurability    int     `json:"cur_durability,omitempty"`
	Quantity         int     `json:"quantity,omitempty"`
	SocketCount      int     `json:"socket_count,omitempty"`

	Affixes       []Affix   `json:"magic_attrs,omitempty"`
	SetExtra      [][]Affix `json:"set_extra_attrs,omitempty"`
	SetReqItems   []int     `json:"set_req_items_count,omitempty"`
	InsertedCount int       `json:"inserted_items_count,omitempty"`
	Sockets       []*Item   `json:"socketed_items,omitempty"`

	// Name is the resolved display name: magic/rare/set/unique/runeword
	// name when the matching table has the id, otherwise the base name.
	Name string `json:"name"`

	category data.Category
}

// IsMagic reports whether the item is of magic quality.
func (it *Item) IsMagic() bool { return it.Quality == QualityMagic }

// IsSet reports whether the item belongs to a set.
func (it *Item) IsSet() bool { return it.Quality == QualitySet }

// IsRare reports whether the item is rare or crafted.
func (it *Item) IsRare() bool {
	return it.Quality == QualityRare || it.Quality == QualityCrafted
}

// IsUnique reports whether the item is unique.
func (it *Item) IsUnique() bool { return it.Quality == QualityUnique }

// setExtraCounts maps the 5-bit set bonus mask to the number of extra affix
// groups following the main list.
var setExtraCounts = map[int]int{
	0: 0, 1: 1, 2: 1, 3: 2, 4: 1, 6: 2, 7: 3, 10: 2, 12: 2, 15: 4, 31: 5,
}

type itemDecoder struct {
	r      *bitstream.Reader
	tables *data.Storage
}

// qualityFields dispatches the tier-specific sub-fields of an extended
// record. Layouts are selected by quality tier only, never inferred from
// the base type.
var qualityFields = map[Quality]func(*itemDecoder, *Item) error{
	QualityLow:      (*itemDecoder).readInferiorFields,
	QualityNormal:   func(*itemDecoder, *Item) error { return nil },
	QualitySuperior: (*itemDecoder).readInferiorFields,
	QualityMagic:    (*itemDecoder).readMagicFields,
	QualitySet:      (*itemDecoder).readSetFields,
	QualityRare:     (*itemDecoder).readRareFields,
	QualityUnique:   (*itemDecoder).readUniqueFields,
	QualityCrafted:  (*itemDecoder).readRareFields,
}

// decodeItem reads one complete item record: header, common fields, the
// extended section for non-simple items, and, recursively, any socketed
// children that follow the host record.
func (d *itemDecoder) decodeItem() (*Item, error) {
	it, err := d.decodeRecord()
	if err != nil {
		return nil, err
	}
	if it.Simple || it.InsertedCount == 0 {
		return it, nil
	}
	for i := 0; i < it.InsertedCount; i++ {
		child, err := d.decodeItem()
		if err != nil {
			return nil, fmt.Errorf("socketed item %d of %s: %w", i+1, it.Code, err)
		}
		d.attachSocketed(it, child)
	}
	return it, nil
}

// decodeRecord reads a single record without following socketed children.
func (d *itemDecoder) decodeRecord() (*Item, error) {
	start := d.r.BytePos()
	magic, err := d.r.ReadBits(16)
	if err != nil {
		return nil, err
	}
	if magic != itemMagic {
		return nil, &FormatError{
			Section: "item",
			Offset:  start,
			Msg:     fmt.Sprintf("bad item signature 0x%04X", magic),
		}
	}

	it := &Item{}
	if err := d.readFlags(it); err != nil {
		return nil, err
	}
	if err := d.readBaseType(it); err != nil {
		return nil, err
	}
	if !it.Simple {
		if err := d.readExtended(it); err != nil {
			return nil, err
		}
	}
	d.r.AlignToByte()

	it.Name = d.resolveName(it)
	return it, nil
}

// readFlags consumes the fixed flag bitfield and the location/position
// group common to every record.
func (d *itemDecoder) readFlags(it *Item) error {
	var err error
	read := func(n int) int {
		if err != nil {
			return 0
		}
		var v uint32
		v, err = d.r.ReadBits(n)
		return int(v)
	}
	flag := func() bool { return read(1) != 0 }

	read(4)
	it.Identified = flag()
	read(6)
	it.Socketed = flag()
	read(1)
	it.New = flag()
	read(2)
	it.Ear = flag()
	it.StartItem = flag()
	read(3)
	it.Simple = flag()
	it.Ethereal = flag()
	read(1)
	it.Personalized = flag()
	read(1)
	it.Runeword = flag()
	read(5)
	it.Version = read(8)
	read(2)
	it.LocationID = read(3)
	it.EquippedID = read(4)
	it.PosX = read(4)
	it.PosY = read(3)
	read(1)
	it.PanelID = read(3)
	return err
}

// readBaseType reads the base item code (or the ear identity block) and
// resolves it against the base tables. An unknown code is not fatal: the
// raw code is kept and the display name stays empty.
func (d *itemDecoder) readBaseType(it *Item) error {
	if it.Ear {
		cls, err := d.r.ReadBits(3)
		if err != nil {
			return err
		}
		lvl, err := d.r.ReadBits(7)
		if err != nil {
			return err
		}
		name, err := d.readCharString(7)
		if err != nil {
			return err
		}
		it.EarClass = CharacterClass(cls)
		it.EarLevel = int(lvl)
		it.EarName = name
		it.Code = "ear"
		it.BaseName, _, _ = d.tables.BaseItem(it.Code)
		it.Category = data.CategoryMisc.String()
		return nil
	}

	code := make([]byte, 4)
	for i := range code {
		c, err := d.r.ReadBits(8)
		if err != nil {
			return err
		}
		code[i] = byte(c)
	}
	it.Code = trimSpaceRight(code)

	name, cat, ok := d.tables.BaseItem(it.Code)
	if ok {
		it.BaseName = name
	}
	it.category = cat
	it.Category = cat.String()

	count, err := d.r.ReadBits(3)
	if err != nil {
		return err
	}
	it.InsertedCount = int(count)
	return nil
}

// readExtended reads the non-simple section: id, level, quality and its
// tier-specific fields, runeword and personalization, armor and durability
// fields, sockets, and the affix lists.
func (d *itemDecoder) readExtended(it *Item) error {
	id, err := d.r.ReadBits(32)
	if err != nil {
		return err
	}
	it.ID = id

	lvl, err := d.r.ReadBits(7)
	if err != nil {
		return err
	}
	it.Level = int(lvl)

	q, err := d.r.ReadBits(4)
	if err != nil {
		return err
	}
	it.Quality = Quality(q)

	hasPic, err := d.r.ReadBits(1)
	if err != nil {
		return err
	}
	if hasPic != 0 {
		pic, err := d.r.ReadBits(3)
		if err != nil {
			return err
		}
		it.PictureID = int(pic)
	}

	classSpecific, err := d.r.ReadBits(1)
	if err != nil {
		return err
	}
	if classSpecific != 0 {
		if _, err := d.r.ReadBits(11); err != nil {
			return err
		}
	}

	readTier, ok := qualityFields[it.Quality]
	if !ok {
		return &FormatError{
			Section: "item",
			Offset:  d.r.BytePos(),
			Msg:     fmt.Sprintf("unknown quality tier %d", it.Quality),
		}
	}
	if err := readTier(d, it); err != nil {
		return err
	}

	if it.Runeword {
		rw, err := d.r.ReadBits(12)
		if err != nil {
			return err
		}
		it.RunewordID = int(rw)
		if _, err := d.r.ReadBits(4); err != nil {
			return err
		}
	}

	if it.Personalized {
		name, err := d.readCharString(7)
		if err != nil {
			return err
		}
		it.PersonalizedName = name
	}

	// Tomes carry an extra spell id field.
	if it.Code == "tbk" || it.Code == "ibk" {
		if _, err := d.r.ReadBits(5); err != nil {
			return err
		}
	}

	// Unused timestamp bit.
	if _, err := d.r.ReadBits(1); err != nil {
		return err
	}

	if it.category == data.CategoryArmor || it.category == data.CategoryShield {
		def, err := d.r.ReadBits(11)
		if err != nil {
			return err
		}
		it.DefenseRating = int(def) - 10
	}
	if it.category != data.CategoryMisc {
		maxDur, err := d.r.ReadBits(8)
		if err != nil {
			return err
		}
		it.MaxDurability = int(maxDur)
		if it.MaxDurability > 0 {
			cur, err := d.r.ReadBits(8)
			if err != nil {
				return err
			}
			it.CurDurability = int(cur)
			if _, err := d.r.ReadBits(1); err != nil {
				return err
			}
		}
	}

	if d.tables.IsQuantitative(it.Code) {
		qty, err := d.r.ReadBits(9)
		if err != nil {
			return err
		}
		it.Quantity = int(qty)
	}

	if it.Socketed {
		n, err := d.r.ReadBits(4)
		if err != nil {
			return err
		}
		it.SocketCount = int(n)
	}

	extraSetID, extraCount := 0, 0
	if it.Quality == QualitySet {
		v, err := d.r.ReadBits(5)
		if err != nil {
			return err
		}
		extraSetID = int(v)
		extraCount = setExtraCounts[extraSetID]
	}

	it.Affixes, err = d.readAffixList()
	if err != nil {
		return err
	}

	for i := 0; i < extraCount; i++ {
		group, err := d.readAffixList()
		if err != nil {
			return fmt.Errorf("set bonus group %d: %w", i+1, err)
		}
		it.SetExtra = append(it.SetExtra, group)
	}
	if extraCount > 0 && it.SetID != 0 {
		for bit := 0; bit < 5; bit++ {
			if extraSetID&(1<<bit) != 0 {
				it.SetReqItems = append(it.SetReqItems, bit+2)
			}
		}
	}

	if it.Runeword {
		more, err := d.readAffixList()
		if err != nil {
			return fmt.Errorf("runeword attrs: %w", err)
		}
		it.Affixes = append(it.Affixes, more...)
	}
	return nil
}

func (d *itemDecoder) readInferiorFields(it *Item) error {
	_, err := d.r.ReadBits(3)
	return err
}

func (d *itemDecoder) readMagicFields(it *Item) error {
	prefix, err := d.r.ReadBits(11)
	if err != nil {
		return err
	}
	suffix, err := d.r.ReadBits(11)
	if err != nil {
		return err
	}
	it.PrefixID = int(prefix)
	it.SuffixID = int(suffix)
	return nil
}

func (d *itemDecoder) readSetFields(it *Item) error {
	id, err := d.r.ReadBits(12)
	if err != nil {
		return err
	}
	it.SetID = int(id)
	return nil
}

func (d *itemDecoder) readUniqueFields(it *Item) error {
	id, err := d.r.ReadBits(12)
	if err != nil {
		return err
	}
	it.UniqueID = int(id)
	return nil
}

func (d *itemDecoder) readRareFields(it *Item) error {
	first, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	second, err := d.r.ReadBits(8)
	if err != nil {
		return err
	}
	it.RareFirstID = int(first)
	it.RareSecondID = int(second)
	for i := 0; i < 6; i++ {
		present, err := d.r.ReadBits(1)
		if err != nil {
			return err
		}
		if present != 0 {
			id, err := d.r.ReadBits(11)
			if err != nil {
				return err
			}
			it.RareAffixIDs = append(it.RareAffixIDs, int(id))
		}
	}
	return nil
}

// readAffixList reads {9-bit property id, table-driven value fields} pairs
// until the terminator. An id missing from the property table aborts the
// decode: its width is unknown and every later read would be misaligned.
func (d *itemDecoder) readAffixList() ([]Affix, error) {
	var affixes []Affix
	for n := 0; ; n++ {
		if n == maxAffixes {
			return nil, &FormatError{
				Section: "item",
				Offset:  d.r.BytePos(),
				Msg:     fmt.Sprintf("affix list exceeds %d entries, terminator missing", maxAffixes),
			}
		}
		id, err := d.r.ReadBits(9)
		if err != nil {
			return nil, err
		}
		if id == affixTerminator {
			return affixes, nil
		}
		desc := d.tables.Property(int(id))
		if desc == nil {
			return nil, &UnknownPropertyError{
				ID:        int(id),
				Offset:    d.r.BytePos(),
				BitOffset: d.r.BitPos(),
			}
		}
		values := make([]int, len(desc.Bits))
		for i, width := range desc.Bits {
			raw, err := d.r.ReadBits(width)
			if err != nil {
				return nil, err
			}
			values[i] = int(raw) - desc.Bias
		}
		if desc.Invisible {
			continue
		}
		affixes = append(affixes, Affix{
			ID:      int(id),
			Values:  values,
			Display: desc.Format(d.displayValues(int(id), values)),
		})
	}
}

// displayValues substitutes skill and class ids with their names for the
// property templates that reference them.
func (d *itemDecoder) displayValues(id int, values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	switch {
	case id == 83 || id == 84:
		if cls := CharacterClass(values[0]); cls.Valid() {
			out[0] = cls.String()
		}
	case id == 97 || id == 107 || id == 109 || (id >= 181 && id <= 187):
		if name, ok := d.tables.SkillName(values[0]); ok {
			out[0] = name
		}
	case id == 188:
		if len(values) >= 2 {
			if cls := CharacterClass(values[1]); cls.Valid() {
				out[1] = cls.String()
			}
		}
	case id >= 195 && id <= 213:
		if len(values) >= 2 {
			if name, ok := d.tables.SkillName(values[1]); ok {
				out[1] = name
			}
		}
	}
	return out
}

// attachSocketed attaches a child record to its host and merges the bonus
// the socketable grants for the host's category. Jewels contribute their
// own affix list; a socketable missing from the bonus tables is attached
// without a merged bonus (the raw child record is still exposed).
func (d *itemDecoder) attachSocketed(host, child *Item) {
	child.LocationID = LocSocketed
	host.Sockets = append(host.Sockets, child)

	if child.Code == "jew" {
		host.Affixes = append(host.Affixes, child.Affixes...)
		return
	}
	for _, bonus := range d.tables.SocketBonuses(host.category, child.Code) {
		desc := d.tables.Property(bonus.ID)
		if desc == nil {
			continue
		}
		host.Affixes = append(host.Affixes, Affix{
			ID:      bonus.ID,
			Values:  bonus.Values,
			Display: desc.Format(d.displayValues(bonus.ID, bonus.Values)),
		})
	}
}

// resolveName maps the item's quality and name references to a display
// name. Table misses fall back to the base name; they never fail the
// decode since the cursor is unaffected.
func (d *itemDecoder) resolveName(it *Item) string {
	switch {
	case it.Simple:
	case it.Quality == QualityMagic:
		if name := d.tables.MagicName(it.PrefixID, it.SuffixID); name != "" {
			return name
		}
	case it.Quality == QualityRare || it.Quality == QualityCrafted:
		if name := d.tables.RareName(it.RareFirstID, it.RareSecondID); name != "" {
			return name
		}
	case it.Quality == QualitySet:
		if name, ok := d.tables.SetName(it.SetID); ok {
			return name
		}
	case it.Quality == QualityUnique:
		if name, ok := d.tables.UniqueName(it.UniqueID); ok {
			return name
		}
	}
	if it.Runeword {
		if name, ok := d.tables.RunewordName(it.RunewordID); ok {
			return name
		}
	}
	return it.BaseName
}

// readCharString reads a NUL-terminated string of fixed-width character
// codes (7 bits in ear and personalization blocks).
func (d *itemDecoder) readCharString(width int) (string, error) {
	var raw []byte
	for {
		if len(raw) == maxNameLength {
			return "", &FormatError{
				Section: "item",
				Offset:  d.r.BytePos(),
				Msg:     fmt.Sprintf("name exceeds %d characters, terminator missing", maxNameLength),
			}
		}
		c, err := d.r.ReadBits(width)
		if err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
		raw = append(raw, byte(c))
	}
	return decodeName(raw)
}

// decodeName converts raw name bytes to UTF-8. Names are ASCII in practice
// but extended bytes occur in some locales.
func decodeName(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(decoded), nil
}

func trimSpaceRight(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
