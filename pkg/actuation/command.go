package actuation

import (
	"fmt"
	"math"
)

// Source tags where a Command comes from.
type Source int

// Sources
const (
	SourceSafety Source = iota
	SourceHost
	SourceRC
)

// String implements fmt.Stringer.
func (s Source) String() string {
	switch s {
	case SourceSafety:
		return "safety"
	case SourceHost:
		return "host"
	case SourceRC:
		return "rc"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// Command is a unit-bearing actuation setpoint.
type Command struct {
	// Throttle is the signed target speed in m/s.
	Throttle float64
	// Steering is the signed wheel angle in radians.
	Steering float64
	// Brake is the brake fraction in [0, 1].
	Brake  float64
	Source Source
}

// SafetyCommand stops the vehicle: zero throttle, centered steering, full brake.
var SafetyCommand = Command{Brake: 1, Source: SourceSafety}

// IsFinite checks no field is NaN or infinite.
func (c Command) IsFinite() bool {
	for _, v := range []float64{c.Throttle, c.Steering, c.Brake} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return fmt.Sprintf("%s{throttle=%.3f steering=%.4f brake=%.2f}", c.Source, c.Throttle, c.Steering, c.Brake)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
