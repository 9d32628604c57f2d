package actuation

import "fmt"

// CommandType is the motor-controller command byte.
type CommandType uint8

// Motor-controller command types.
const (
	SetDuty                CommandType = 0
	SetCurrent             CommandType = 1
	SetCurrentBrake        CommandType = 2
	SetRPM                 CommandType = 3
	SetPos                 CommandType = 4
	StatusGeneral          CommandType = 9
	SetCurrentRel          CommandType = 10
	SetCurrentBrakeRel     CommandType = 11
	SetCurrentHandbrake    CommandType = 12
	SetCurrentHandbrakeRel CommandType = 13
	Status4                CommandType = 16
)

// Fixed-point scale factors.
const (
	ScaleDuty     = 1e5
	ScaleCurrent  = 1e3
	ScalePos      = 1e6
	ScaleRelative = 1e5
	ScaleOffDelay = 1e3
	ScaleStatus4  = 50
)

// Address composes the bus address of a command to a controller.
func Address(controllerID uint8, cmd CommandType) uint32 {
	return uint32(controllerID) | uint32(cmd)<<8
}

// Frame is an outbound bus frame.
type Frame struct {
	ID      uint32
	Payload Buffer
}

// Data returns the payload bytes.
func (f *Frame) Data() []byte {
	return f.Payload.Bytes()
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("%08x#% x", f.ID, f.Data())
}

func newFrame(controllerID uint8, cmd CommandType) Frame {
	return Frame{ID: Address(controllerID, cmd)}
}

func (f Frame) done() (Frame, error) {
	return f, f.Payload.Err()
}

// DutyFrame sets duty cycle in [-1, 1].
func DutyFrame(id uint8, duty float64) (Frame, error) {
	f := newFrame(id, SetDuty)
	f.Payload.PutScaled32(duty, ScaleDuty)
	return f.done()
}

// CurrentFrame sets motor current in A.
func CurrentFrame(id uint8, current float64) (Frame, error) {
	f := newFrame(id, SetCurrent)
	f.Payload.PutScaled32(current, ScaleCurrent)
	return f.done()
}

// CurrentOffDelayFrame sets motor current in A, keeping it for offDelay seconds.
func CurrentOffDelayFrame(id uint8, current, offDelay float64) (Frame, error) {
	f := newFrame(id, SetCurrent)
	f.Payload.PutScaled32(current, ScaleCurrent).PutScaled16(offDelay, ScaleOffDelay)
	return f.done()
}

// CurrentBrakeFrame sets braking current in A.
func CurrentBrakeFrame(id uint8, current float64) (Frame, error) {
	f := newFrame(id, SetCurrentBrake)
	f.Payload.PutScaled32(current, ScaleCurrent)
	return f.done()
}

// RPMFrame sets electrical RPM.
func RPMFrame(id uint8, erpm int32) (Frame, error) {
	f := newFrame(id, SetRPM)
	f.Payload.PutInt32(erpm)
	return f.done()
}

// PosFrame sets position in degrees. The controller expects the
// inverted direction.
func PosFrame(id uint8, deg float64) (Frame, error) {
	f := newFrame(id, SetPos)
	f.Payload.PutScaled32(-deg, ScalePos)
	return f.done()
}

// CurrentRelFrame sets current relative to the configured maximum.
func CurrentRelFrame(id uint8, rel float64) (Frame, error) {
	f := newFrame(id, SetCurrentRel)
	f.Payload.PutScaled32(rel, ScaleRelative)
	return f.done()
}

// CurrentRelOffDelayFrame is CurrentRelFrame with an off delay in seconds.
func CurrentRelOffDelayFrame(id uint8, rel, offDelay float64) (Frame, error) {
	f := newFrame(id, SetCurrentRel)
	f.Payload.PutScaled32(rel, ScaleRelative).PutScaled16(offDelay, ScaleOffDelay)
	return f.done()
}

// CurrentBrakeRelFrame sets braking current relative to the maximum.
func CurrentBrakeRelFrame(id uint8, rel float64) (Frame, error) {
	f := newFrame(id, SetCurrentBrakeRel)
	f.Payload.PutScaled32(rel, ScaleRelative)
	return f.done()
}

// HandbrakeFrame sets handbrake current in A.
func HandbrakeFrame(id uint8, current float64) (Frame, error) {
	f := newFrame(id, SetCurrentHandbrake)
	f.Payload.PutScaled32(current, ScaleCurrent)
	return f.done()
}

// HandbrakeRelFrame sets handbrake current relative to the maximum.
func HandbrakeRelFrame(id uint8, rel float64) (Frame, error) {
	f := newFrame(id, SetCurrentHandbrakeRel)
	f.Payload.PutScaled32(rel, ScaleRelative)
	return f.done()
}

// BrakeFrame positions the brake actuator. The actuator speaks its own
// protocol: a fixed header followed by a 13-bit position.
func BrakeFrame(id uint32, pos uint16) (Frame, error) {
	f := Frame{ID: id}
	f.Payload.
		PutUint8(0x0F).
		PutUint8(0x4A).
		PutUint8(uint8(pos)).
		PutUint8(0xC0 | uint8(pos>>8)&0x1F).
		PutInt32(0)
	return f.done()
}
