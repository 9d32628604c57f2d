package actuation

import "math"

// SteeringPoint pairs a wheel angle with the motor angle producing it.
type SteeringPoint struct {
	Wheel float64 `yaml:"wheel"`
	Motor float64 `yaml:"motor"`
}

// SteeringTable maps wheel angles to motor angles. Both fields are
// strictly increasing and angles are non-negative radians.
type SteeringTable []SteeringPoint

// DefaultSteeringTable is the factory calibration.
var DefaultSteeringTable = SteeringTable{
	{0, 0},
	{0.523599, 0.15708},
	{0.872665, 0.20944},
	{1.22173, 0.296706},
	{1.39626, 0.349066},
	{1.57079, 0.401425},
	{1.74532, 0.453785},
	{1.91986, 0.506145},
}

// NeutralMotorAngle is returned for wheel angles outside the table.
const NeutralMotorAngle = 0.0

// NewSteeringTable validates points and returns a table.
func NewSteeringTable(points []SteeringPoint) (SteeringTable, error) {
	if len(points) < 2 {
		return nil, ErrBadTable
	}
	for n := 1; n < len(points); n++ {
		if points[n].Wheel <= points[n-1].Wheel || points[n].Motor <= points[n-1].Motor {
			return nil, ErrBadTable
		}
	}
	return append(SteeringTable(nil), points...), nil
}

// MotorAngle interpolates the motor angle for a signed wheel angle.
// The sign of the input is preserved. Angles outside the table yield
// NeutralMotorAngle.
func (t SteeringTable) MotorAngle(wheel float64) float64 {
	if math.IsNaN(wheel) || len(t) == 0 {
		return NeutralMotorAngle
	}
	sign, abs := 1.0, wheel
	if wheel < 0 {
		sign, abs = -1.0, -wheel
	}
	if abs < t[0].Wheel {
		return NeutralMotorAngle
	}
	for n := 0; n < len(t); n++ {
		if abs == t[n].Wheel {
			return sign * t[n].Motor
		}
		if n+1 < len(t) && abs < t[n+1].Wheel {
			lo, hi := t[n], t[n+1]
			return sign * (lo.Motor + (abs-lo.Wheel)*(hi.Motor-lo.Motor)/(hi.Wheel-lo.Wheel))
		}
	}
	return NeutralMotorAngle
}

// MaxWheel returns the largest wheel angle covered by the table.
func (t SteeringTable) MaxWheel() float64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].Wheel
}

// WheelAngle is the inverse of MotorAngle.
func (t SteeringTable) WheelAngle(motor float64) float64 {
	if math.IsNaN(motor) || len(t) == 0 {
		return 0
	}
	sign, abs := 1.0, motor
	if motor < 0 {
		sign, abs = -1.0, -motor
	}
	for n := 0; n+1 < len(t); n++ {
		lo, hi := t[n], t[n+1]
		if abs >= lo.Motor && abs <= hi.Motor {
			return sign * (lo.Wheel + (abs-lo.Motor)*(hi.Wheel-lo.Wheel)/(hi.Motor-lo.Motor))
		}
	}
	return 0
}
