package models

import (
	"fmt"
	"strings"
)

// Belt is a rank in the ordered belt ladder for a skill.
type Belt string

const (
	BeltWhite  Belt = "white"
	BeltYellow Belt = "yellow"
	BeltOrange Belt = "orange"
	BeltGreen  Belt = "green"
	BeltBlue   Belt = "blue"
	BeltPurple Belt = "purple"
	BeltBrown  Belt = "brown"
	BeltBlack  Belt = "black"
)

// BeltOrder lists every belt from rank 0 to the top rank.
var BeltOrder = []Belt{
	BeltWhite,
	BeltYellow,
	BeltOrange,
	BeltGreen,
	BeltBlue,
	BeltPurple,
	BeltBrown,
	BeltBlack,
}

// TopBelt is the terminal rank; nothing follows it.
const TopBelt = BeltBlack

// Index returns the rank of the belt, or -1 when the belt is not in BeltOrder.
func (b Belt) Index() int {
	for i, candidate := range BeltOrder {
		if candidate == b {
			return i
		}
	}
	return -1
}

// Valid reports whether b is one of the known ranks.
func (b Belt) Valid() bool {
	return b.Index() >= 0
}

// Next returns the rank directly above b. ok is false for the top rank and
// for unknown belts.
func (b Belt) Next() (next Belt, ok bool) {
	i := b.Index()
	if i < 0 || i >= len(BeltOrder)-1 {
		return "", false
	}
	return BeltOrder[i+1], true
}

// AtOrBelow reports whether b ranks at or below other. Unknown belts never do.
func (b Belt) AtOrBelow(other Belt) bool {
	bi, oi := b.Index(), other.Index()
	return bi >= 0 && oi >= 0 && bi <= oi
}

func (b Belt) String() string {
	return string(b)
}

// ParseBelt resolves a case-insensitive belt name.
func ParseBelt(s string) (Belt, error) {
	b := Belt(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("unknown belt %q", s)
	}
	return b, nil
}

// BeltNames returns BeltOrder as plain strings.
func BeltNames() []string {
	names := make([]string, len(BeltOrder))
	for i, b := range BeltOrder {
		names[i] = string(b)
	}
	return names
}
