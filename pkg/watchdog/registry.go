package watchdog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// DefaultWakeupInterval bounds the period between two registry ticks.
const DefaultWakeupInterval = 2 * time.Millisecond

// FaultEvent is raised once per starvation episode.
// Watchdogs starving during the same tick are aggregated into one event.
type FaultEvent struct {
	Episode   string
	Watchdogs []string
	Time      time.Time
}

// FaultHandler is notified when a starvation episode begins.
type FaultHandler interface {
	HandleFault(FaultEvent)
}

// HandleFaultFunc is the func form of FaultHandler.
type HandleFaultFunc func(FaultEvent)

// HandleFault implements FaultHandler.
func (f HandleFaultFunc) HandleFault(ev FaultEvent) {
	f(ev)
}

// Verdict is the result of one registry tick.
type Verdict struct {
	// Starved lists every armed watchdog currently starved.
	Starved []string
	// Fault is set only when a new starvation episode begins.
	Fault *FaultEvent
}

// Healthy indicates no armed watchdog is starved.
func (v Verdict) Healthy() bool {
	return len(v.Starved) == 0
}

// Registry owns a set of named Timers.
// Times are expected to come from time.Now so starvation is
// computed from the monotonic clock reading.
type Registry struct {
	WakeupInterval time.Duration
	Handler        FaultHandler
	Now            func() time.Time

	timers map[string]*Timer
	names  []string
	lock   sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		WakeupInterval: DefaultWakeupInterval,
		Now:            time.Now,
		timers:         make(map[string]*Timer),
	}
}

// Register adds a disarmed Timer.
func (r *Registry) Register(name string, interval, maxInactivity time.Duration) error {
	if interval <= 0 || maxInactivity <= 0 {
		return ErrInvalidTimeout
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.timers[name]; ok {
		return ErrDuplicateWatchdog
	}
	r.timers[name] = &Timer{Name: name, Interval: interval, MaxInactivity: maxInactivity}
	r.names = append(r.names, name)
	sort.Strings(r.names)
	return nil
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.names...)
}

// Feed feeds the named Timer with current time.
func (r *Registry) Feed(name string) {
	r.FeedAt(name, r.Now())
}

// FeedAt feeds the named Timer. Unknown or disarmed names are ignored.
func (r *Registry) FeedAt(name string, now time.Time) {
	r.lock.Lock()
	if t := r.timers[name]; t != nil && t.armed {
		t.Feed(now)
	}
	r.lock.Unlock()
}

// Arm arms the named Timers, starting a fresh inactivity window
// for those not armed yet.
func (r *Registry) Arm(now time.Time, names ...string) {
	r.lock.Lock()
	for _, name := range names {
		if t := r.timers[name]; t != nil {
			t.arm(now)
		}
	}
	r.lock.Unlock()
}

// Disarm disarms the named Timers.
func (r *Registry) Disarm(names ...string) {
	r.lock.Lock()
	for _, name := range names {
		if t := r.timers[name]; t != nil {
			t.disarm()
		}
	}
	r.lock.Unlock()
}

// ArmOnly arms the named Timers and disarms all others.
func (r *Registry) ArmOnly(now time.Time, names ...string) {
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
	}
	r.lock.Lock()
	for name, t := range r.timers {
		if keep[name] {
			t.arm(now)
		} else {
			t.disarm()
		}
	}
	r.lock.Unlock()
}

// Fresh reports whether the named Timer is armed and not starved.
func (r *Registry) Fresh(name string, now time.Time) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	t := r.timers[name]
	return t != nil && t.armed && !t.StarvedAt(now)
}

// Tick evaluates all armed Timers at now.
func (r *Registry) Tick(now time.Time) (v Verdict) {
	var tripped []string
	r.lock.Lock()
	for _, name := range r.names {
		t := r.timers[name]
		if !t.StarvedAt(now) {
			continue
		}
		v.Starved = append(v.Starved, name)
		if !t.latched {
			t.latched = true
			tripped = append(tripped, name)
		}
	}
	r.lock.Unlock()
	if len(tripped) > 0 {
		v.Fault = &FaultEvent{
			Episode:   uuid.New().String(),
			Watchdogs: tripped,
			Time:      now,
		}
	}
	return
}

// Validate returns a StaleError if any armed Timer is starved at now.
func (r *Registry) Validate(now time.Time) error {
	var stale []string
	r.lock.Lock()
	for _, name := range r.names {
		if r.timers[name].StarvedAt(now) {
			stale = append(stale, name)
		}
	}
	r.lock.Unlock()
	if len(stale) > 0 {
		return &StaleError{Names: stale}
	}
	return nil
}

// Snapshot returns the status of all Timers in name order.
func (r *Registry) Snapshot(now time.Time) []Status {
	r.lock.Lock()
	defer r.lock.Unlock()
	res := make([]Status, 0, len(r.names))
	for _, name := range r.names {
		res = append(res, r.timers[name].status(now))
	}
	return res
}

// Period is the tick cadence: the fastest registered interval
// bounded by WakeupInterval.
func (r *Registry) Period() time.Duration {
	period := r.WakeupInterval
	if period <= 0 {
		period = DefaultWakeupInterval
	}
	r.lock.Lock()
	for _, t := range r.timers {
		if t.Interval < period {
			period = t.Interval
		}
	}
	r.lock.Unlock()
	return period
}

// Run implements Runnable.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Period())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v := r.Tick(r.Now())
			if v.Fault == nil {
				continue
			}
			glog.Errorf("watchdog starved: %v (episode %s)", v.Fault.Watchdogs, v.Fault.Episode)
			if h := r.Handler; h != nil {
				h.HandleFault(*v.Fault)
			}
		}
	}
}
