package rc

import (
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/actuation"
	"github.com/robotalks/kart.go/pkg/sbus"
)

// Config defines channel assignment and limits of the radio.
type Config struct {
	ThrottleChannel int `yaml:"throttle_channel"`
	SteeringChannel int `yaml:"steering_channel"`
	// ActiveChannel is the right emergency toggle. Negative is active.
	ActiveChannel int `yaml:"active_channel"`
	// LeftActiveChannel is the left emergency toggle. Both toggles
	// must be active. A negative channel disables the left toggle.
	LeftActiveChannel int `yaml:"left_active_channel"`
	// ModeChannel is the right tri-switch selecting the autonomy mode.
	ModeChannel  int `yaml:"mode_channel"`
	RatioChannel int `yaml:"ratio_channel"`

	MaxForwardSpeed  float64 `yaml:"max_forward_speed"`
	MaxReverseSpeed  float64 `yaml:"max_reverse_speed"`
	MaxSteeringAngle float64 `yaml:"max_steering_angle"`
	SteeringDeadband float64 `yaml:"steering_deadband"`
	// StickDeadband is the normalized stick travel ignored when
	// deciding whether the operator is overriding.
	StickDeadband float64 `yaml:"stick_deadband"`
	// TakeoverHold keeps an override alive after the sticks return
	// to center.
	TakeoverHold time.Duration `yaml:"takeover_hold"`
	// ConnectTimeout is the frame silence after which the radio is
	// reported disconnected.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	SwitchEngage  float64 `yaml:"switch_engage"`
	SwitchRelease float64 `yaml:"switch_release"`

	StopOnDisconnect bool `yaml:"stop_on_disconnect"`
}

// DefaultConfig returns the factory radio configuration.
func DefaultConfig() Config {
	return Config{
		ThrottleChannel:   1,
		SteeringChannel:   3,
		ActiveChannel:     7,
		LeftActiveChannel: 4,
		ModeChannel:       6,
		RatioChannel:      9,
		MaxForwardSpeed:   20,
		MaxReverseSpeed:   5,
		MaxSteeringAngle:  20 * math.Pi / 180,
		SteeringDeadband:  0.1 * math.Pi / 180,
		StickDeadband:     0.05,
		TakeoverHold:      100 * time.Millisecond,
		ConnectTimeout:    500 * time.Millisecond,
		SwitchEngage:      0.5,
		SwitchRelease:     0.4,
		StopOnDisconnect:  true,
	}
}

// Action is an operator request derived from the emergency toggle.
type Action int

// Actions
const (
	ActionNone Action = iota
	// ActionEmergencyStop is reported for every frame with a toggle
	// in the stop position.
	ActionEmergencyStop
	// ActionActivate is reported when the toggles become active.
	ActionActivate
)

// Input is the last interpreted radio frame.
type Input struct {
	Throttle float64
	Steering float64
	Brake    float64
	Mode     Mode
	Active   bool
}

// TakeoverState tells whether the operator is commanding the vehicle.
type TakeoverState struct {
	Commanding       bool
	LastCommand      time.Time
	StopOnDisconnect bool
	// Forced is set when commanding is forced by radio loss.
	Forced    bool
	Connected bool
	LastFrame time.Time
}

// Arbiter decides when the RC operator takes over.
type Arbiter struct {
	Config

	mode   *Switch
	input  Input
	state  TakeoverState
	seen   bool
	frames uint64
	echoed uint64
	lock   sync.Mutex
}

// NewArbiter creates an Arbiter.
func NewArbiter(conf Config) *Arbiter {
	return &Arbiter{
		Config: conf,
		mode:   NewSwitch(conf.SwitchEngage, conf.SwitchRelease),
		state:  TakeoverState{StopOnDisconnect: conf.StopOnDisconnect},
	}
}

func (a *Arbiter) channel(f *sbus.Frame, index int) float64 {
	if index < 0 || index >= len(f.Channels) {
		return 0
	}
	return Normalize(f.Channels[index])
}

// Update consumes a decoded frame and returns the operator action it
// implies. Failsafe frames are generated by the receiver itself and
// are not evidence of a live radio, so they are ignored.
func (a *Arbiter) Update(f sbus.Frame, now time.Time) Action {
	if f.Failsafe {
		return ActionNone
	}
	throttle := a.channel(&f, a.ThrottleChannel)
	steering := a.channel(&f, a.SteeringChannel)
	ratio := (a.channel(&f, a.RatioChannel) + 1) / 2
	active := a.channel(&f, a.ActiveChannel) < 0 &&
		(a.LeftActiveChannel < 0 || a.channel(&f, a.LeftActiveChannel) < 0)

	a.lock.Lock()
	defer a.lock.Unlock()

	mode := ModeOf(a.mode.Classify(a.channel(&f, a.ModeChannel)))
	centered := math.Abs(throttle) <= a.StickDeadband && math.Abs(steering) <= a.StickDeadband

	in := Input{Mode: mode, Active: active}
	if !centered {
		in.Throttle = a.speed(throttle) * ratio
		in.Steering = a.angle(steering)
	}

	action := ActionNone
	switch {
	case !active:
		action = ActionEmergencyStop
	case a.seen && !a.input.Active:
		action = ActionActivate
	}
	if a.seen && a.input.Mode != mode {
		glog.Infof("RC mode %s -> %s", a.input.Mode, mode)
	}
	a.seen = true
	a.input = in
	a.frames++

	st := &a.state
	st.Connected, st.LastFrame, st.Forced = true, now, false
	switch mode {
	case Manual:
		st.Commanding, st.LastCommand = true, now
	case Override:
		if !centered {
			st.Commanding, st.LastCommand = true, now
		} else if st.Commanding && now.Sub(st.LastCommand) > a.TakeoverHold {
			st.Commanding = false
		}
	default:
		st.Commanding = false
	}
	return action
}

func (a *Arbiter) speed(n float64) float64 {
	if n > 0 {
		return n * a.MaxForwardSpeed
	}
	return n * a.MaxReverseSpeed
}

func (a *Arbiter) angle(n float64) float64 {
	angle := n * a.MaxSteeringAngle
	if math.Abs(angle) < a.SteeringDeadband {
		return 0
	}
	return angle
}

// Disconnect is called when the radio heartbeat starves.
// With StopOnDisconnect the operator takes over with a stop command.
func (a *Arbiter) Disconnect() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.state.Connected = false
	if a.StopOnDisconnect {
		a.state.Commanding, a.state.Forced = true, true
	}
}

// State returns the takeover state at now.
func (a *Arbiter) State(now time.Time) TakeoverState {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.expire(now)
	return a.state
}

func (a *Arbiter) expire(now time.Time) {
	if a.state.Connected && a.ConnectTimeout > 0 && now.Sub(a.state.LastFrame) > a.ConnectTimeout {
		a.state.Connected = false
		glog.Warningf("RC disconnected, last frame %s ago", now.Sub(a.state.LastFrame))
	}
}

// StopHeld reports whether a connected radio holds an emergency
// toggle in the stop position.
func (a *Arbiter) StopHeld(now time.Time) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.expire(now)
	return a.state.Connected && !a.input.Active
}

// Connected reports whether a frame arrived within ConnectTimeout.
func (a *Arbiter) Connected(now time.Time) bool {
	return a.State(now).Connected
}

// Command returns the RC command and whether the operator is
// commanding. A forced takeover commands a stop. Sticks of a
// disconnected radio never command.
func (a *Arbiter) Command(now time.Time) (actuation.Command, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.expire(now)
	if !a.state.Commanding || (!a.state.Forced && !a.state.Connected) {
		return actuation.Command{Source: actuation.SourceRC}, false
	}
	if a.state.Forced {
		return actuation.Command{Brake: 1, Source: actuation.SourceRC}, true
	}
	return actuation.Command{
		Throttle: a.input.Throttle,
		Steering: a.input.Steering,
		Brake:    a.input.Brake,
		Source:   actuation.SourceRC,
	}, true
}

// Input returns the last interpreted frame.
func (a *Arbiter) Input() Input {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.input
}

// Mode returns the selected autonomy mode.
func (a *Arbiter) Mode() Mode {
	return a.Input().Mode
}

// TakeEcho returns the last input if a frame arrived since the
// previous call.
func (a *Arbiter) TakeEcho() (Input, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.echoed == a.frames {
		return a.input, false
	}
	a.echoed = a.frames
	return a.input, true
}
