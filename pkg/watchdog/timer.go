package watchdog

import "time"

// Timer monitors a single periodic activity.
// A Timer is not safe for concurrent use, Registry serializes access.
type Timer struct {
	Name string
	// Interval is the expected feeding interval.
	Interval time.Duration
	// MaxInactivity is the tolerated time without a feed.
	MaxInactivity time.Duration

	lastFed time.Time
	armed   bool
	latched bool
}

// Status is a read-only snapshot of a Timer.
type Status struct {
	Name          string
	Interval      time.Duration
	MaxInactivity time.Duration
	LastFed       time.Time
	Armed         bool
	Starved       bool
}

// Feed records activity at now.
func (t *Timer) Feed(now time.Time) {
	t.lastFed = now
	t.latched = false
}

// StarvedAt reports whether the timer is armed and has not been
// fed for more than MaxInactivity at now.
func (t *Timer) StarvedAt(now time.Time) bool {
	return t.armed && now.Sub(t.lastFed) > t.MaxInactivity
}

func (t *Timer) arm(now time.Time) {
	if !t.armed {
		t.armed, t.lastFed, t.latched = true, now, false
	}
}

func (t *Timer) disarm() {
	t.armed, t.latched = false, false
}

func (t *Timer) status(now time.Time) Status {
	return Status{
		Name:          t.Name,
		Interval:      t.Interval,
		MaxInactivity: t.MaxInactivity,
		LastFed:       t.lastFed,
		Armed:         t.armed,
		Starved:       t.StarvedAt(now),
	}
}
