package lifecycle

import (
	"fmt"
	"strings"
)

// State is the vehicle lifecycle state.
// Values are the codes used on the host link.
type State uint8

// States
const (
	Uninitialized State = 0
	Initializing  State = 1
	Idle          State = 2
	Engaged       State = 3
	ShuttingDown  State = 253
	Faulted       State = 254
	EmergencyStop State = 255
)

var stateNames = map[State]string{
	Uninitialized: "uninitialized",
	Initializing:  "initializing",
	Idle:          "idle",
	Engaged:       "engaged",
	ShuttingDown:  "shutting-down",
	Faulted:       "faulted",
	EmergencyStop: "emergency-stop",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// IsValid checks s is a known state.
func (s State) IsValid() bool {
	_, ok := stateNames[s]
	return ok
}

// IsSafe indicates the state forces the safety command on actuators.
func (s State) IsSafe() bool {
	return s != Engaged
}

// ParseState parses a state name.
func ParseState(name string) (State, error) {
	name = strings.ToLower(name)
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	switch name {
	case "estop", "emergency":
		return EmergencyStop, nil
	case "active":
		return Engaged, nil
	case "inactive":
		return Idle, nil
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Trigger names the event which requests a transition.
type Trigger int

// Triggers
const (
	TriggerInitialize Trigger = iota
	TriggerActivate
	TriggerDeactivate
	TriggerEmergencyStop
	TriggerReinitialize
	TriggerShutdown
	TriggerReset
)

var triggerNames = []string{
	"initialize",
	"activate",
	"deactivate",
	"emergency-stop",
	"reinitialize",
	"shutdown",
	"reset",
}

// String implements fmt.Stringer.
func (t Trigger) String() string {
	if t >= 0 && int(t) < len(triggerNames) {
		return triggerNames[t]
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// TriggerFor finds the trigger moving from towards target.
func TriggerFor(from, target State) (Trigger, bool) {
	switch target {
	case EmergencyStop:
		return TriggerEmergencyStop, true
	case Engaged:
		return TriggerActivate, true
	case Idle, Initializing:
		switch from {
		case Uninitialized:
			return TriggerInitialize, true
		case Engaged:
			return TriggerDeactivate, true
		case EmergencyStop:
			return TriggerReinitialize, true
		}
	case ShuttingDown:
		return TriggerShutdown, true
	case Uninitialized:
		return TriggerReset, true
	}
	return 0, false
}

// Source identifies who requested a transition.
type Source int

// Sources
const (
	SourceSystem Source = iota
	SourceHost
	SourceOperator
	SourceWatchdog
)

var sourceNames = []string{"system", "host", "operator", "watchdog"}

// String implements fmt.Stringer.
func (s Source) String() string {
	if s >= 0 && int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return fmt.Sprintf("source(%d)", int(s))
}
