package actuation

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/kart.go/pkg/lifecycle"
)

type sentFrame struct {
	id   uint32
	data []byte
}

type fakeBus struct {
	frames  []sentFrame
	reject  map[int]bool
	writes  int
	resets  int
	failErr error
}

func (b *fakeBus) WriteFrame(id uint32, data []byte) bool {
	n := b.writes
	b.writes++
	if b.reject[n] {
		return false
	}
	b.frames = append(b.frames, sentFrame{id: id, data: append([]byte(nil), data...)})
	return true
}

func (b *fakeBus) Reset() error {
	b.resets++
	return b.failErr
}

func TestBuffer(t *testing.T) {
	var b Buffer
	b.PutInt32(-2).PutInt16(0x1234).PutUint8(7)
	require.NoError(t, b.Err())
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xfe, 0x12, 0x34, 7}, b.Bytes())
	b.PutInt16(1)
	require.Equal(t, ErrBufferFull, b.Err())
	require.Equal(t, 7, b.Len())
	b.PutUint8(1)
	require.Equal(t, 7, b.Len())
	b.Reset()
	require.NoError(t, b.Err())
	require.Zero(t, b.Len())
}

func TestFrameBuilders(t *testing.T) {
	testCases := []struct {
		name  string
		build func() (Frame, error)
		id    uint32
		data  []byte
	}{
		{"duty", func() (Frame, error) { return DutyFrame(1, 0.5) }, 0x001, []byte{0x00, 0x00, 0xc3, 0x50}},
		{"current", func() (Frame, error) { return CurrentFrame(1, 2) }, 0x101, []byte{0x00, 0x00, 0x07, 0xd0}},
		{"current off delay", func() (Frame, error) { return CurrentOffDelayFrame(1, 2, 0.5) }, 0x101, []byte{0x00, 0x00, 0x07, 0xd0, 0x01, 0xf4}},
		{"current brake", func() (Frame, error) { return CurrentBrakeFrame(1, 1) }, 0x201, []byte{0x00, 0x00, 0x03, 0xe8}},
		{"rpm", func() (Frame, error) { return RPMFrame(1, -1000) }, 0x301, []byte{0xff, 0xff, 0xfc, 0x18}},
		{"pos", func() (Frame, error) { return PosFrame(2, 10) }, 0x402, []byte{0xff, 0x67, 0x69, 0x80}},
		{"current rel", func() (Frame, error) { return CurrentRelFrame(1, 0.1) }, 0xa01, []byte{0x00, 0x00, 0x27, 0x10}},
		{"current rel off delay", func() (Frame, error) { return CurrentRelOffDelayFrame(1, 0.1, 1) }, 0xa01, []byte{0x00, 0x00, 0x27, 0x10, 0x03, 0xe8}},
		{"current brake rel", func() (Frame, error) { return CurrentBrakeRelFrame(1, 1) }, 0xb01, []byte{0x00, 0x01, 0x86, 0xa0}},
		{"handbrake", func() (Frame, error) { return HandbrakeFrame(3, 1) }, 0xc03, []byte{0x00, 0x00, 0x03, 0xe8}},
		{"handbrake rel", func() (Frame, error) { return HandbrakeRelFrame(3, 1) }, 0xd03, []byte{0x00, 0x01, 0x86, 0xa0}},
		{"brake", func() (Frame, error) { return BrakeFrame(0x00FF0000, 600) }, 0x00FF0000, []byte{0x0f, 0x4a, 0x58, 0xc2, 0, 0, 0, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := tc.build()
			require.NoError(t, err)
			require.Equal(t, tc.id, f.ID)
			require.Equal(t, tc.data, f.Data())
		})
	}
}

func TestSteeringTableHit(t *testing.T) {
	require.Equal(t, 0.20944, DefaultSteeringTable.MotorAngle(0.872665))
	require.Equal(t, -0.20944, DefaultSteeringTable.MotorAngle(-0.872665))
	require.Equal(t, 0.0, DefaultSteeringTable.MotorAngle(0))
	require.Equal(t, 0.506145, DefaultSteeringTable.MotorAngle(1.91986))
}

func TestSteeringInterpolation(t *testing.T) {
	mid := (0.523599 + 0.872665) / 2
	require.InDelta(t, (0.15708+0.20944)/2, DefaultSteeringTable.MotorAngle(mid), 1e-9)
	require.InDelta(t, -(0.15708+0.20944)/2, DefaultSteeringTable.MotorAngle(-mid), 1e-9)
}

func TestSteeringMonotonic(t *testing.T) {
	prev := 0.0
	for x := 0.0; x <= DefaultSteeringTable.MaxWheel(); x += 0.001 {
		m := DefaultSteeringTable.MotorAngle(x)
		require.True(t, m >= prev, "not monotonic at %v", x)
		require.True(t, m >= 0)
		require.Equal(t, -m, DefaultSteeringTable.MotorAngle(-x))
		prev = m
	}
}

func TestSteeringOutOfTable(t *testing.T) {
	for _, x := range []float64{1.92, 2.5, -1.92, -100, math.Inf(1), math.Inf(-1), math.NaN()} {
		require.Equal(t, NeutralMotorAngle, DefaultSteeringTable.MotorAngle(x), "input %v", x)
	}
	table, err := NewSteeringTable([]SteeringPoint{{0.1, 0.2}, {0.5, 0.9}})
	require.NoError(t, err)
	require.Equal(t, NeutralMotorAngle, table.MotorAngle(0.05))
	require.Equal(t, NeutralMotorAngle, table.MotorAngle(-0.05))
}

func TestNewSteeringTable(t *testing.T) {
	_, err := NewSteeringTable(DefaultSteeringTable)
	require.NoError(t, err)
	_, err = NewSteeringTable([]SteeringPoint{{0, 0}})
	require.Equal(t, ErrBadTable, err)
	_, err = NewSteeringTable([]SteeringPoint{{0, 0}, {0.5, 0.1}, {0.4, 0.2}})
	require.Equal(t, ErrBadTable, err)
	_, err = NewSteeringTable([]SteeringPoint{{0, 0}, {0.5, 0.1}, {0.6, 0.1}})
	require.Equal(t, ErrBadTable, err)
}

func TestWheelAngleInverse(t *testing.T) {
	for _, x := range []float64{0, 0.1, 0.3, 0.872665, -0.5, 1.9} {
		require.InDelta(t, x, DefaultSteeringTable.WheelAngle(DefaultSteeringTable.MotorAngle(x)), 1e-9)
	}
}

func TestBrakeScaling(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, c.MinBrake, c.BrakePosition(0))
	require.Equal(t, c.MaxBrake, c.BrakePosition(1))
	require.Equal(t, uint16(600), c.BrakePosition(-3))
	require.Equal(t, uint16(3000), c.BrakePosition(7))
	require.Equal(t, uint16(1800), c.BrakePosition(0.5))

	f, err := BrakeFrame(c.BrakeID, c.BrakePosition(1))
	require.NoError(t, err)
	require.Equal(t, []byte{0x0f, 0x4a, 0xb8, 0xcb, 0, 0, 0, 0}, f.Data())
}

func TestERPM(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, int32(0), c.ERPM(0))
	erpm := c.ERPM(5)
	require.True(t, erpm > 0)
	require.Equal(t, -erpm, c.ERPM(-5))
	require.InDelta(t, 5, c.Speed(erpm), 0.01)
}

func TestZeroThrottleFrame(t *testing.T) {
	c := DefaultConfig()
	frames, err := c.Frames(Command{Source: SourceHost}, lifecycle.Engaged)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	require.Equal(t, Address(c.ThrottleID, SetRPM), frames[0].ID)
	require.Equal(t, []byte{0, 0, 0, 0}, frames[0].Data())
	require.Equal(t, Address(c.SteerID, SetPos), frames[1].ID)
	require.Equal(t, c.BrakeID, frames[2].ID)
	require.Equal(t, []byte{0x0f, 0x4a, 0x58, 0xc2, 0, 0, 0, 0}, frames[2].Data())
}

func TestSafetyFramesUnlessEngaged(t *testing.T) {
	c := DefaultConfig()
	safety, err := c.SafetyFrames()
	require.NoError(t, err)
	require.Equal(t, Address(c.ThrottleID, SetCurrentBrakeRel), safety[0].ID)
	require.Equal(t, c.BrakeID, safety[2].ID)

	commands := []Command{
		{Throttle: 10, Steering: 0.2, Brake: 0, Source: SourceHost},
		{Throttle: -3, Steering: -0.3, Brake: 0.2, Source: SourceRC},
		SafetyCommand,
		{Throttle: math.NaN(), Source: SourceHost},
	}
	states := []lifecycle.State{
		lifecycle.Uninitialized, lifecycle.Initializing, lifecycle.Idle,
		lifecycle.EmergencyStop, lifecycle.ShuttingDown, lifecycle.Faulted,
	}
	for _, state := range states {
		for _, cmd := range commands {
			frames, err := c.Frames(cmd, state)
			require.NoError(t, err)
			require.Equal(t, safety, frames, "%s %s", state, cmd)
		}
	}

	// non-finite commands never reach the bus even when engaged
	frames, err := c.Frames(Command{Steering: math.Inf(1)}, lifecycle.Engaged)
	require.NoError(t, err)
	require.Equal(t, safety, frames)
}

func TestSteeringClamp(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, c.SteeringDegrees(c.MaxSteeringAngle), c.SteeringDegrees(1.5))
	require.Equal(t, c.SteeringDegrees(-c.MaxSteeringAngle), c.SteeringDegrees(-1.5))
	require.True(t, c.SteeringDegrees(0.1) > c.SteeringDegrees(0))
	require.True(t, c.SteeringDegrees(-0.1) < c.SteeringDegrees(0))
}

func TestThrottleClamp(t *testing.T) {
	c := DefaultConfig()
	c.MaxReverseSpeed = 5
	frames, err := c.Frames(Command{Throttle: -50}, lifecycle.Engaged)
	require.NoError(t, err)
	require.Equal(t, c.ERPM(-5), int32(binary.BigEndian.Uint32(frames[0].Data())))
	frames, err = c.Frames(Command{Throttle: 50}, lifecycle.Engaged)
	require.NoError(t, err)
	require.Equal(t, c.ERPM(20), int32(binary.BigEndian.Uint32(frames[0].Data())))
}

func TestApplyBusFailure(t *testing.T) {
	bus := &fakeBus{reject: map[int]bool{1: true}}
	applied := 0
	e := NewEncoder(DefaultConfig(), bus)
	e.Applied = func() { applied++ }

	e.Apply(Command{Throttle: 1, Source: SourceHost}, lifecycle.Engaged)
	require.Equal(t, 1, bus.resets)
	require.Len(t, bus.frames, 2)
	require.Equal(t, Stats{Applied: 1, Written: 2, Dropped: 1, Resets: 1}, e.Stats())
	require.Equal(t, 1, applied)

	// next tick continues normally
	bus.failErr = errors.New("transceiver gone")
	e.Apply(Command{Throttle: 1, Source: SourceHost}, lifecycle.Engaged)
	require.Len(t, bus.frames, 5)
	require.Equal(t, 2, applied)
}

func TestApplySafety(t *testing.T) {
	bus := &fakeBus{}
	e := NewEncoder(DefaultConfig(), bus)
	e.Apply(Command{Throttle: 5, Source: SourceHost}, lifecycle.Idle)
	safety, err := e.SafetyFrames()
	require.NoError(t, err)
	require.Len(t, bus.frames, len(safety))
	for n, f := range safety {
		require.Equal(t, f.ID, bus.frames[n].id)
		require.Equal(t, f.Data(), bus.frames[n].data)
	}
}

func TestFeedback(t *testing.T) {
	e := NewEncoder(DefaultConfig(), &fakeBus{})
	now := time.Now()
	initial := e.Feedback()
	require.False(t, initial.HasSpeed())

	status := make([]byte, 8)
	binary.BigEndian.PutUint32(status, uint32(e.ERPM(3)))
	require.True(t, e.HandleFrame(Address(e.ThrottleID, StatusGeneral), status, now))
	fb := e.Feedback()
	require.True(t, fb.HasSpeed())
	require.InDelta(t, 3, fb.Speed, 0.01)

	// steering position reported back as sent
	deg := e.SteeringDegrees(0.2)
	status4 := make([]byte, 8)
	binary.BigEndian.PutUint16(status4[6:], uint16(int16((360-deg)*ScaleStatus4)))
	require.True(t, e.HandleFrame(Address(e.SteerID, Status4), status4, now))
	fb = e.Feedback()
	require.True(t, fb.HasSteering())
	require.InDelta(t, 0.2, fb.SteeringAngle, 0.01)

	require.False(t, e.HandleFrame(Address(9, StatusGeneral), status, now))
	require.False(t, e.HandleFrame(Address(e.SteerID, Status4), status4[:4], now))
}
