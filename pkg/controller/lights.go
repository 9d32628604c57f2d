package controller

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/rc"
)

// LightState is the tower light output.
type LightState struct {
	Red    bool
	Yellow bool
	Green  bool
}

// String implements fmt.Stringer.
func (s LightState) String() string {
	on := func(b bool) byte {
		if b {
			return '*'
		}
		return '-'
	}
	return fmt.Sprintf("R%cY%cG%c", on(s.Red), on(s.Yellow), on(s.Green))
}

// Lights drives the tower light.
type Lights interface {
	SetLights(LightState)
}

// LogLights logs light changes.
type LogLights struct{}

// SetLights implements Lights.
func (LogLights) SetLights(s LightState) {
	glog.V(1).Infof("lights %s", s)
}

// LightsFor computes the tower light for state. flash toggles at the
// flashing frequency.
func LightsFor(state lifecycle.State, rcConnected bool, mode rc.Mode, flash bool) LightState {
	switch {
	case state == lifecycle.EmergencyStop || state == lifecycle.Faulted:
		return LightState{Red: flash}
	case state == lifecycle.Engaged && !rcConnected:
		return LightState{Yellow: flash}
	}
	switch mode {
	case rc.Override:
		return LightState{Yellow: true}
	case rc.Manual:
		return LightState{Red: true}
	default:
		return LightState{Green: true}
	}
}

// flashOn is true in the first half of every period since start.
func flashOn(start, now time.Time, period time.Duration) bool {
	if period <= 0 {
		return true
	}
	return now.Sub(start)%period < period/2
}
