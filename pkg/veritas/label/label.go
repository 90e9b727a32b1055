package label

import (
	"fmt"
	"strings"
)

// Class is a binary document label.
type Class int8

const (
	Fake Class = -1
	Real Class = 1
)

// String returns "fake" or "real".
func (c Class) String() string {
	switch c {
	case Fake:
		return "fake"
	case Real:
		return "real"
	default:
		return fmt.Sprintf("class(%d)", int8(c))
	}
}

// Valid reports whether c is Fake or Real.
func (c Class) Valid() bool {
	return c == Fake || c == Real
}

// Value returns the numeric label (-1 or +1).
func (c Class) Value() float64 {
	return float64(c)
}

// Parse converts "fake"/"real" (any case) to a Class.
func Parse(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fake":
		return Fake, nil
	case "real":
		return Real, nil
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

// FromSign maps a belief score to a class. Zero maps to Fake so that every
// node receives a prediction.
func FromSign(v float64) Class {
	if v > 0 {
		return Real
	}
	return Fake
}

// Supervision is the tagged per-node supervision state: either a known class
// or unknown (held out, to be inferred).
type Supervision struct {
	class Class
	known bool
}

// Known returns supervision carrying class c.
func Known(c Class) Supervision {
	return Supervision{class: c, known: true}
}

// Unknown returns supervision for a held-out node.
func Unknown() Supervision {
	return Supervision{}
}

// IsKnown reports whether the node is supervised.
func (s Supervision) IsKnown() bool {
	return s.known
}

// Class returns the supervised class and whether it is known.
func (s Supervision) Class() (Class, bool) {
	return s.class, s.known
}

// Prior is the numeric FaBP prior: +1/-1 for known nodes, 0 for unknown ones.
func (s Supervision) Prior() float64 {
	if !s.known {
		return 0
	}
	return s.class.Value()
}

func (s Supervision) String() string {
	if !s.known {
		return "unknown"
	}
	return s.class.String()
}
