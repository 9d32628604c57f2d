package rc

import "fmt"

// Raw channel range reported by the receiver.
const (
	RawMin = 174
	RawMid = 992
	RawMax = 1800
)

// Normalize maps a raw channel value into [-1, 1].
// The raw value is clamped to the receiver range first.
func Normalize(raw uint16) float64 {
	v := int(raw)
	if v > RawMax {
		v = RawMax
	}
	if v < RawMin {
		v = RawMin
	}
	v -= RawMid
	if v >= 0 {
		return float64(v) / (RawMax - RawMid)
	}
	return float64(v) / (RawMid - RawMin)
}

// Position is the discrete position of a switch channel.
type Position int

// Positions
const (
	Mid Position = iota
	Down
	Up
)

// String implements fmt.Stringer.
func (p Position) String() string {
	switch p {
	case Mid:
		return "mid"
	case Down:
		return "down"
	case Up:
		return "up"
	}
	return fmt.Sprintf("position(%d)", int(p))
}

// Switch classifies a normalized channel into Positions.
// Leaving Up or Down requires crossing Release, which is closer to
// the center than Engage.
type Switch struct {
	Engage  float64
	Release float64

	pos   Position
	valid bool
}

// NewSwitch creates a Switch.
func NewSwitch(engage, release float64) *Switch {
	return &Switch{Engage: engage, Release: release}
}

// Position returns the last classified position.
func (s *Switch) Position() Position {
	return s.pos
}

// Classify updates and returns the position for v.
func (s *Switch) Classify(v float64) Position {
	switch {
	case !s.valid:
		s.valid = true
		s.pos = s.fromMid(v)
	case s.pos == Up:
		if v < s.Release {
			s.pos = s.fromMid(v)
		}
	case s.pos == Down:
		if v > -s.Release {
			s.pos = s.fromMid(v)
		}
	default:
		s.pos = s.fromMid(v)
	}
	return s.pos
}

func (s *Switch) fromMid(v float64) Position {
	if v > s.Engage {
		return Up
	}
	if v < -s.Engage {
		return Down
	}
	return Mid
}

// Reset forgets the last position.
func (s *Switch) Reset() {
	s.pos, s.valid = Mid, false
}

// Mode is the autonomy mode selected by the operator.
type Mode uint8

// Modes, values are used on the wire.
const (
	Autonomous Mode = 0
	Override   Mode = 1
	Manual     Mode = 2
)

// ModeOf maps the mode switch position.
func ModeOf(p Position) Mode {
	switch p {
	case Down:
		return Autonomous
	case Up:
		return Manual
	}
	return Override
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Autonomous:
		return "autonomous"
	case Override:
		return "override"
	case Manual:
		return "manual"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}
