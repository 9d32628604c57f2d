package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func newTestRegistry(t *testing.T) *Registry {
	r := NewRegistry()
	require.NoError(t, r.Register("host_heartbeat", time.Second, 2*time.Second))
	require.NoError(t, r.Register("control_cmd", 10*time.Millisecond, 200*time.Millisecond))
	return r
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(t)
	require.Equal(t, ErrDuplicateWatchdog, r.Register("control_cmd", time.Millisecond, time.Second))
	require.Equal(t, ErrInvalidTimeout, r.Register("x", 0, time.Second))
	require.Equal(t, ErrInvalidTimeout, r.Register("x", time.Second, 0))
	require.Equal(t, []string{"control_cmd", "host_heartbeat"}, r.Names())
}

func TestStarvation(t *testing.T) {
	testCases := []struct {
		name    string
		feeds   []int
		tickAt  int
		starved bool
	}{
		{"no feed within tolerance", nil, 200, false},
		{"no feed beyond tolerance", nil, 201, true},
		{"fed recently", []int{100}, 150, false},
		{"fed exactly at tolerance", []int{100}, 300, false},
		{"fed then silent", []int{50, 100}, 301, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRegistry(t)
			r.Arm(t0, "control_cmd")
			for _, ms := range tc.feeds {
				r.FeedAt("control_cmd", at(ms))
			}
			v := r.Tick(at(tc.tickAt))
			if tc.starved {
				require.Equal(t, []string{"control_cmd"}, v.Starved)
				require.False(t, v.Healthy())
			} else {
				require.True(t, v.Healthy())
			}
		})
	}
}

func TestDetectionWithinOnePeriod(t *testing.T) {
	r := newTestRegistry(t)
	r.Arm(t0, "control_cmd")
	period := r.Period()
	require.Equal(t, 2*time.Millisecond, period)
	limit := t0.Add(200 * time.Millisecond)
	var detected time.Time
	for now := t0; now.Before(limit.Add(10 * period)); now = now.Add(period) {
		if v := r.Tick(now); !v.Healthy() {
			detected = now
			break
		}
	}
	require.False(t, detected.IsZero())
	require.True(t, detected.After(limit))
	require.True(t, detected.Sub(limit) <= period)
}

func TestFaultEventOncePerEpisode(t *testing.T) {
	r := newTestRegistry(t)
	r.Arm(t0, "control_cmd", "host_heartbeat")

	v := r.Tick(at(201))
	require.NotNil(t, v.Fault)
	require.Equal(t, []string{"control_cmd"}, v.Fault.Watchdogs)
	require.NotEmpty(t, v.Fault.Episode)
	episode := v.Fault.Episode

	for ms := 203; ms < 1000; ms += 2 {
		v = r.Tick(at(ms))
		require.Nil(t, v.Fault)
		require.Equal(t, []string{"control_cmd"}, v.Starved)
	}

	// a fresh feed ends the episode
	r.FeedAt("control_cmd", at(1000))
	require.True(t, r.Tick(at(1001)).Healthy())
	v = r.Tick(at(1201))
	require.NotNil(t, v.Fault)
	require.NotEqual(t, episode, v.Fault.Episode)
}

func TestFaultEventAggregates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", time.Millisecond, 10*time.Millisecond))
	require.NoError(t, r.Register("b", time.Millisecond, 10*time.Millisecond))
	r.Arm(t0, "a", "b")
	v := r.Tick(at(11))
	require.NotNil(t, v.Fault)
	require.Equal(t, []string{"a", "b"}, v.Fault.Watchdogs)
}

func TestFeedDisarmedOrUnknown(t *testing.T) {
	r := newTestRegistry(t)
	r.FeedAt("unknown", at(1))
	r.FeedAt("control_cmd", at(1))
	require.True(t, r.Tick(at(10000)).Healthy())
	require.False(t, r.Fresh("control_cmd", at(1)))

	// arming starts a fresh window regardless of earlier feeds
	r.Arm(at(10000), "control_cmd")
	require.True(t, r.Fresh("control_cmd", at(10200)))
	require.False(t, r.Fresh("control_cmd", at(10201)))
}

func TestArmOnly(t *testing.T) {
	r := newTestRegistry(t)
	r.ArmOnly(t0, "host_heartbeat")
	status := r.Snapshot(at(500))
	require.Len(t, status, 2)
	require.False(t, status[0].Armed)
	require.True(t, status[1].Armed)

	// re-arming an armed timer keeps its window
	r.ArmOnly(at(1500), "host_heartbeat")
	require.Error(t, r.Validate(at(2001)))

	r.ArmOnly(at(2001))
	require.NoError(t, r.Validate(at(2001)))
}

func TestValidate(t *testing.T) {
	r := newTestRegistry(t)
	r.Arm(t0, "control_cmd", "host_heartbeat")
	r.FeedAt("host_heartbeat", at(500))
	err := r.Validate(at(300))
	require.Error(t, err)
	stale, ok := err.(*StaleError)
	require.True(t, ok)
	require.Equal(t, []string{"control_cmd"}, stale.Names)

	r.FeedAt("control_cmd", at(300))
	require.NoError(t, r.Validate(at(310)))
}

func TestConcurrentFeedAndTick(t *testing.T) {
	r := newTestRegistry(t)
	r.Arm(t0, "control_cmd", "host_heartbeat")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for ms := 0; ms < 1000; ms++ {
				if i%2 == 0 {
					r.FeedAt("control_cmd", at(ms))
				} else {
					r.Tick(at(ms))
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestRunDeliversFault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", time.Millisecond, 5*time.Millisecond))
	faultCh := make(chan FaultEvent, 4)
	r.Handler = HandleFaultFunc(func(ev FaultEvent) { faultCh <- ev })
	r.Arm(time.Now(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	select {
	case ev := <-faultCh:
		require.Equal(t, []string{"a"}, ev.Watchdogs)
	case <-time.After(time.Second):
		t.Fatal("fault not delivered")
	}
	select {
	case <-faultCh:
		t.Fatal("fault delivered twice in one episode")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}
