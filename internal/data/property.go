package data

import (
	"fmt"
	"strings"
)

// PropertyDescriptor describes one magic property (affix) as it appears in
// the item bitstream: how many value fields follow the 9-bit property id,
// the width of each, and the bias subtracted from every raw value.
//
// The widths come from community reverse-engineering of the save format.
// A wrong width desynchronizes every later read, which is why an id missing
// from the table is a fatal decode error rather than a skip.
type PropertyDescriptor struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"` // display template with {0},{1},... placeholders
	Bits      []int  `yaml:"bits"`
	Bias      int    `yaml:"bias"`
	Invisible bool   `yaml:"invisible"` // parsed for stream position but not displayed
}

// TotalBits returns the number of value bits following the property id.
func (d *PropertyDescriptor) TotalBits() int {
	n := 0
	for _, b := range d.Bits {
		n += b
	}
	return n
}

// Format renders the display template with the given resolved values.
// Placeholders without a matching value are left untouched.
func (d *PropertyDescriptor) Format(values []any) string {
	s := d.Name
	for i, v := range values {
		s = strings.ReplaceAll(s, fmt.Sprintf("{%d}", i), fmt.Sprint(v))
	}
	return s
}

// SocketBonus is one property granted by a gem or rune when socketed into a
// host item. The granted property depends on the host category (the same
// rune gives different bonuses in a weapon, armor or shield).
type SocketBonus struct {
	ID     int   `yaml:"id"`
	Values []int `yaml:"values"`
}
