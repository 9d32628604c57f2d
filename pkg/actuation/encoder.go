package actuation

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/lifecycle"
)

// Bus is the vehicle bus write primitive.
type Bus interface {
	// WriteFrame returns false if the transceiver rejects the frame.
	WriteFrame(id uint32, data []byte) bool
	// Reset resets and reconfigures the transceiver.
	Reset() error
}

// Config defines vehicle constants used by Encoder.
type Config struct {
	ThrottleID uint8  `yaml:"throttle_id"`
	SteerID    uint8  `yaml:"steer_id"`
	BrakeID    uint32 `yaml:"brake_id"`

	MotorPoles         float64 `yaml:"motor_poles"`
	GearRatio          float64 `yaml:"gear_ratio"`
	WheelCircumference float64 `yaml:"wheel_circumference"`

	MaxForwardSpeed  float64 `yaml:"max_forward_speed"`
	MaxReverseSpeed  float64 `yaml:"max_reverse_speed"`
	MaxSteeringAngle float64 `yaml:"max_steering_angle"`
	MotorOffset      float64 `yaml:"motor_offset"`

	MinBrake uint16 `yaml:"min_brake"`
	MaxBrake uint16 `yaml:"max_brake"`

	Steering SteeringTable `yaml:"steering"`
}

// DefaultConfig returns the factory vehicle constants.
func DefaultConfig() Config {
	return Config{
		ThrottleID:         1,
		SteerID:            2,
		BrakeID:            0x00FF0000,
		MotorPoles:         5,
		GearRatio:          59.0 / 22.0,
		WheelCircumference: 0.254 * math.Pi,
		MaxForwardSpeed:    20,
		MaxReverseSpeed:    20,
		MaxSteeringAngle:   20 * math.Pi / 180,
		MotorOffset:        0.3,
		MinBrake:           600,
		MaxBrake:           3000,
		Steering:           DefaultSteeringTable,
	}
}

// ERPM converts a speed in m/s to electrical RPM.
func (c *Config) ERPM(speed float64) int32 {
	return int32(speed * c.MotorPoles * c.GearRatio / c.WheelCircumference * 60)
}

// Speed converts electrical RPM to m/s.
func (c *Config) Speed(erpm int32) float64 {
	return float64(erpm) * c.WheelCircumference / (c.MotorPoles * c.GearRatio * 60)
}

// BrakePosition scales a brake fraction into the actuator range.
func (c *Config) BrakePosition(fraction float64) uint16 {
	if math.IsNaN(fraction) {
		fraction = 1
	}
	fraction = clamp(fraction, 0, 1)
	return uint16(fraction*float64(c.MaxBrake-c.MinBrake)) + c.MinBrake
}

// SteeringDegrees converts a wheel angle to the steering controller
// position in degrees.
func (c *Config) SteeringDegrees(wheel float64) float64 {
	wheel = clamp(wheel, -c.MaxSteeringAngle, c.MaxSteeringAngle)
	return (c.Steering.MotorAngle(wheel) + c.MotorOffset) * 180 / math.Pi
}

// Frames builds the bus frames for cmd in state.
// Any state other than Engaged yields the safety frames.
func (c *Config) Frames(cmd Command, state lifecycle.State) ([]Frame, error) {
	if state != lifecycle.Engaged || !cmd.IsFinite() {
		return c.SafetyFrames()
	}
	throttle := clamp(cmd.Throttle, -c.MaxReverseSpeed, c.MaxForwardSpeed)
	frames := make([]Frame, 0, 3)
	for _, build := range []func() (Frame, error){
		func() (Frame, error) { return RPMFrame(c.ThrottleID, c.ERPM(throttle)) },
		func() (Frame, error) { return PosFrame(c.SteerID, c.SteeringDegrees(cmd.Steering)) },
		func() (Frame, error) { return BrakeFrame(c.BrakeID, c.BrakePosition(cmd.Brake)) },
	} {
		f, err := build()
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// SafetyFrames builds the frames which stop the vehicle.
func (c *Config) SafetyFrames() ([]Frame, error) {
	throttle, err := CurrentBrakeRelFrame(c.ThrottleID, 1)
	if err != nil {
		return nil, err
	}
	steer, err := PosFrame(c.SteerID, c.SteeringDegrees(0))
	if err != nil {
		return nil, err
	}
	brake, err := BrakeFrame(c.BrakeID, c.MaxBrake)
	if err != nil {
		return nil, err
	}
	return []Frame{throttle, steer, brake}, nil
}

// Stats counts Encoder activity.
type Stats struct {
	Applied uint64
	Written uint64
	Dropped uint64
	Resets  uint64
}

// Encoder turns Commands into bus frames.
type Encoder struct {
	Config
	Bus Bus
	// Applied is called after every Apply, e.g. to feed a watchdog.
	Applied func()

	applied, written, dropped, resets atomic.Uint64

	feedback     Feedback
	feedbackLock sync.RWMutex
}

// NewEncoder creates an Encoder writing to bus.
func NewEncoder(conf Config, bus Bus) *Encoder {
	return &Encoder{Config: conf, Bus: bus}
}

// Apply writes cmd to the bus, or the safety frames unless state is
// Engaged. A rejected frame resets the bus once and is dropped; Apply
// never retries.
func (e *Encoder) Apply(cmd Command, state lifecycle.State) {
	e.applied.Add(1)
	defer func() {
		if fn := e.Applied; fn != nil {
			fn()
		}
	}()
	frames, err := e.Frames(cmd, state)
	if err != nil {
		glog.Errorf("encode %s: %v", cmd, err)
		return
	}
	for n := range frames {
		f := &frames[n]
		if glog.V(3) {
			glog.Infof("CAN %s", f)
		}
		if e.Bus.WriteFrame(f.ID, f.Data()) {
			e.written.Add(1)
			continue
		}
		e.dropped.Add(1)
		e.resets.Add(1)
		if err := e.Bus.Reset(); err != nil {
			glog.Warningf("bus reset failed: %v", err)
		} else {
			glog.Warningf("frame %s rejected, bus reset", f)
		}
	}
}

// Stats returns counters.
func (e *Encoder) Stats() Stats {
	return Stats{
		Applied: e.applied.Load(),
		Written: e.written.Load(),
		Dropped: e.dropped.Load(),
		Resets:  e.resets.Load(),
	}
}
