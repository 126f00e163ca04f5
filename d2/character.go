package d2

// CharacterClass is the class code stored at offset 40 of a save file.
type CharacterClass uint8

const (
	Amazon CharacterClass = iota
	Sorceress
	Necromancer
	Paladin
	Barbarian
	Druid
	Assassin
)

var classNames = [...]string{
	"Amazon", "Sorceress", "Necromancer", "Paladin",
	"Barbarian", "Druid", "Assassin",
}

func (c CharacterClass) Valid() bool {
	return int(c) < len(classNames)
}

func (c CharacterClass) String() string {
	if !c.Valid() {
		return "Unknown"
	}
	return classNames[c]
}

// CharacterStatus is the status flag byte at offset 36.
type CharacterStatus uint8

const (
	StatusHardcore  CharacterStatus = 0x04
	StatusDied      CharacterStatus = 0x08
	StatusExpansion CharacterStatus = 0x20
	StatusLadder    CharacterStatus = 0x40
)

func (s CharacterStatus) IsHardcore() bool  { return s&StatusHardcore != 0 }
func (s CharacterStatus) IsDead() bool      { return s&StatusDied != 0 }
func (s CharacterStatus) IsExpansion() bool { return s&StatusExpansion != 0 }
func (s CharacterStatus) IsLadder() bool    { return s&StatusLadder != 0 }

// Attribute identifies one entry of the bit-packed character attribute
// block.
type Attribute int

const (
	Strength Attribute = iota
	Energy
	Dexterity
	Vitality
	UnusedStats
	UnusedSkills
	CurrentHP
	MaxHP
	CurrentMana
	MaxMana
	CurrentStamina
	MaxStamina
	Level
	Experience
	Gold
	StashedGold
)

var attributeNames = [...]string{
	"strength", "energy", "dexterity", "vitality",
	"unused_stats", "unused_skills",
	"current_hp", "max_hp", "current_mana", "max_mana",
	"current_stamina", "max_stamina",
	"level", "experience", "gold", "stashed_gold",
}

// attributeBits gives the value width for each attribute id in the
// attribute block. Ids outside this table are a format error.
var attributeBits = map[Attribute]int{
	Strength:       10,
	Energy:         10,
	Dexterity:      10,
	Vitality:       10,
	UnusedStats:    10,
	UnusedSkills:   8,
	CurrentHP:      21,
	MaxHP:          21,
	CurrentMana:    21,
	MaxMana:        21,
	CurrentStamina: 21,
	MaxStamina:     21,
	Level:          7,
	Experience:     32,
	Gold:           25,
	StashedGold:    25,
}

// fixedPointAttrs store their value as a 21-bit fixed-point number with 8
// fractional bits.
var fixedPointAttrs = map[Attribute]bool{
	CurrentHP:      true,
	MaxHP:          true,
	CurrentMana:    true,
	MaxMana:        true,
	CurrentStamina: true,
	MaxStamina:     true,
}

func (a Attribute) Valid() bool {
	return a >= 0 && int(a) < len(attributeNames)
}

func (a Attribute) String() string {
	if !a.Valid() {
		return "unknown"
	}
	return attributeNames[a]
}

// MarshalText makes attribute maps serialize with readable keys.
func (a Attribute) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Difficulty is the highest difficulty the character has reached.
type Difficulty int

const (
	DifficultyNormal Difficulty = iota
	DifficultyNightmare
	DifficultyHell
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyNightmare:
		return "nightmare"
	case DifficultyHell:
		return "hell"
	default:
		return "normal"
	}
}

// Town is the act town the character last saved in.
type Town int

var townNames = [...]string{
	"Rogue Encampment", "Lut Gholein", "Kurast Docks",
	"Pandemonium Fortress", "Harrogath",
}

func (t Town) String() string {
	if t < 0 || int(t) >= len(townNames) {
		return "Unknown"
	}
	return townNames[t]
}
