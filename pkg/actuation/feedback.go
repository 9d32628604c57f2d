package actuation

import (
	"encoding/binary"
	"math"
	"time"
)

// Feedback is the latest state reported by the motor controllers.
type Feedback struct {
	ERPM          int32
	Speed         float64
	SpeedTime     time.Time
	SteeringPos   float64
	SteeringAngle float64
	SteeringTime  time.Time
}

// HasSpeed indicates a throttle status was received.
func (f *Feedback) HasSpeed() bool {
	return !f.SpeedTime.IsZero()
}

// HasSteering indicates a steering status was received.
func (f *Feedback) HasSteering() bool {
	return !f.SteeringTime.IsZero()
}

// HandleFrame consumes a status frame read from the bus.
// Frames not addressed to our controllers are ignored.
func (e *Encoder) HandleFrame(id uint32, data []byte, now time.Time) bool {
	switch id {
	case Address(e.ThrottleID, StatusGeneral):
		if len(data) < 4 {
			return false
		}
		erpm := int32(binary.BigEndian.Uint32(data))
		e.feedbackLock.Lock()
		e.feedback.ERPM = erpm
		e.feedback.Speed = e.Speed(erpm)
		e.feedback.SpeedTime = now
		e.feedbackLock.Unlock()
		return true
	case Address(e.SteerID, Status4):
		if len(data) < 8 {
			return false
		}
		pos := float64(int16(binary.BigEndian.Uint16(data[6:]))) / ScaleStatus4
		// position is reported inverted, see PosFrame
		motor := (360-pos)*math.Pi/180 - e.MotorOffset
		e.feedbackLock.Lock()
		e.feedback.SteeringPos = pos
		e.feedback.SteeringAngle = e.Steering.WheelAngle(motor)
		e.feedback.SteeringTime = now
		e.feedbackLock.Unlock()
		return true
	}
	return false
}

// Feedback returns the latest feedback.
func (e *Encoder) Feedback() Feedback {
	e.feedbackLock.RLock()
	defer e.feedbackLock.RUnlock()
	return e.feedback
}
