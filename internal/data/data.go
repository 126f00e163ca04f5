// Package data holds the static lookup tables that drive save file decoding:
// base item codes, magic property bit widths, affix/set/unique/runeword
// names, skill names and per-class skill offsets, and socket bonuses.
//
// The tables are reverse-engineered community data shipped as embedded YAML
// datasets. They are loaded once, never mutated afterwards, and safe for any
// number of concurrent readers.
package data

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables/*.yaml
var tablesFS embed.FS

// Category distinguishes the base item kind. It drives which extended fields
// (defense, durability) are present in the bitstream.
type Category int

const (
	CategoryMisc Category = iota
	CategoryArmor
	CategoryShield
	CategoryWeapon
)

func (c Category) String() string {
	switch c {
	case CategoryArmor:
		return "armor"
	case CategoryShield:
		return "shield"
	case CategoryWeapon:
		return "weapon"
	default:
		return "misc"
	}
}

// Storage is the immutable table set. Obtain it via Tables.
type Storage struct {
	weapons      map[string]string
	armors       map[string]string
	shields      map[string]string
	misc         map[string]string
	quantitative map[string]struct{}

	props    map[int]*PropertyDescriptor
	prefixes map[int]string
	suffixes map[int]string
	rare     map[int]string

	sets      map[int]string
	uniques   map[int]string
	runewords map[int]string

	skillNames   map[int]string
	skillOffsets map[int]int

	weaponSock map[string][]SocketBonus
	armorSock  map[string][]SocketBonus
	shieldSock map[string][]SocketBonus
}

var (
	loadOnce sync.Once
	loaded   *Storage
	loadErr  error
)

// Tables returns the process-wide table storage, loading the embedded
// datasets on first use. The datasets ship with the binary, so a load
// failure means a broken build and panics.
func Tables() *Storage {
	loadOnce.Do(func() {
		loaded, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("data: embedded tables: %v", loadErr))
	}
	return loaded
}

type baseItemsFile struct {
	Weapons      map[string]string `yaml:"weapons"`
	Armors       map[string]string `yaml:"armors"`
	Shields      map[string]string `yaml:"shields"`
	Misc         map[string]string `yaml:"misc"`
	Quantitative []string          `yaml:"quantitative"`
}

type magicAttrsFile struct {
	Properties []PropertyDescriptor `yaml:"properties"`
}

type affixNamesFile struct {
	Prefixes map[int]string `yaml:"prefixes"`
	Suffixes map[int]string `yaml:"suffixes"`
	Rare     map[int]string `yaml:"rare"`
}

type uniqueSetsFile struct {
	Sets      map[int]string `yaml:"sets"`
	Uniques   map[int]string `yaml:"uniques"`
	Runewords map[int]string `yaml:"runewords"`
}

type skillsFile struct {
	Offsets map[int]int    `yaml:"offsets"` // class id -> first skill id
	Names   map[int]string `yaml:"names"`
}

type socketBonusesFile struct {
	Weapon map[string][]SocketBonus `yaml:"weapon"`
	Armor  map[string][]SocketBonus `yaml:"armor"`
	Shield map[string][]SocketBonus `yaml:"shield"`
}

func load() (*Storage, error) {
	s := &Storage{}

	var base baseItemsFile
	if err := loadYAML("tables/base_items.yaml", &base); err != nil {
		return nil, err
	}
	s.weapons = base.Weapons
	s.armors = base.Armors
	s.shields = base.Shields
	s.misc = base.Misc
	s.quantitative = make(map[string]struct{}, len(base.Quantitative))
	for _, code := range base.Quantitative {
		s.quantitative[code] = struct{}{}
	}

	var attrs magicAttrsFile
	if err := loadYAML("tables/magic_attrs.yaml", &attrs); err != nil {
		return nil, err
	}
	s.props = make(map[int]*PropertyDescriptor, len(attrs.Properties))
	for i := range attrs.Properties {
		p := &attrs.Properties[i]
		if len(p.Bits) == 0 {
			return nil, fmt.Errorf("property %d (%s): no bit widths", p.ID, p.Name)
		}
		s.props[p.ID] = p
	}

	var affixes affixNamesFile
	if err := loadYAML("tables/affix_names.yaml", &affixes); err != nil {
		return nil, err
	}
	s.prefixes = affixes.Prefixes
	s.suffixes = affixes.Suffixes
	s.rare = affixes.Rare

	var named uniqueSetsFile
	if err := loadYAML("tables/unique_sets.yaml", &named); err != nil {
		return nil, err
	}
	s.sets = named.Sets
	s.uniques = named.Uniques
	s.runewords = named.Runewords

	var skills skillsFile
	if err := loadYAML("tables/skills.yaml", &skills); err != nil {
		return nil, err
	}
	s.skillNames = skills.Names
	s.skillOffsets = skills.Offsets

	var sock socketBonusesFile
	if err := loadYAML("tables/socket_bonuses.yaml", &sock); err != nil {
		return nil, err
	}
	s.weaponSock = sock.Weapon
	s.armorSock = sock.Armor
	s.shieldSock = sock.Shield

	return s, nil
}

func loadYAML(name string, out any) error {
	raw, err := tablesFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// BaseItem resolves a 3-4 char base item code to its display name and
// category. ok is false for codes absent from every table; decoding still
// proceeds with the raw code in that case.
func (s *Storage) BaseItem(code string) (name string, cat Category, ok bool) {
	if name, ok := s.armors[code]; ok {
		return name, CategoryArmor, true
	}
	if name, ok := s.shields[code]; ok {
		return name, CategoryShield, true
	}
	if name, ok := s.weapons[code]; ok {
		return name, CategoryWeapon, true
	}
	if name, ok := s.misc[code]; ok {
		return name, CategoryMisc, true
	}
	return "", CategoryMisc, false
}

// IsQuantitative reports whether items with this code carry a stack count.
func (s *Storage) IsQuantitative(code string) bool {
	_, ok := s.quantitative[code]
	return ok
}

// Property returns the descriptor for a magic property id, or nil if the id
// is unknown.
func (s *Storage) Property(id int) *PropertyDescriptor {
	return s.props[id]
}

// MagicName builds the display name of a magic item from its prefix and
// suffix ids. Unknown ids contribute nothing.
func (s *Storage) MagicName(prefixID, suffixID int) string {
	return joinNonEmpty(s.prefixes[prefixID], s.suffixes[suffixID])
}

// RareName builds the two-part name of a rare or crafted item.
func (s *Storage) RareName(firstID, secondID int) string {
	return joinNonEmpty(s.rare[firstID], s.rare[secondID])
}

// SetName returns the set item name for an id.
func (s *Storage) SetName(id int) (string, bool) {
	name, ok := s.sets[id]
	return name, ok
}

// UniqueName returns the unique item name for an id.
func (s *Storage) UniqueName(id int) (string, bool) {
	name, ok := s.uniques[id]
	return name, ok
}

// RunewordName returns the runeword name for an id.
func (s *Storage) RunewordName(id int) (string, bool) {
	name, ok := s.runewords[id]
	return name, ok
}

// SkillName returns the display name of a skill id.
func (s *Storage) SkillName(id int) (string, bool) {
	name, ok := s.skillNames[id]
	return name, ok
}

// SkillOffset returns the first skill id of a character class. The skill
// block in a save file stores 30 levels starting at this id.
func (s *Storage) SkillOffset(classID int) (int, bool) {
	off, ok := s.skillOffsets[classID]
	return off, ok
}

// SocketBonuses returns the properties a socketable (gem or rune) grants
// when inserted into a host of the given category, or nil if the code is not
// a socketable.
func (s *Storage) SocketBonuses(cat Category, code string) []SocketBonus {
	switch cat {
	case CategoryWeapon:
		return s.weaponSock[code]
	case CategoryArmor:
		return s.armorSock[code]
	case CategoryShield:
		return s.shieldSock[code]
	default:
		return nil
	}
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
