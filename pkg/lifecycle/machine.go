package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
)

// Hooks are entry actions invoked synchronously during transitions.
// The argument is the state the transition started from.
// Returning an error wrapped by Unrecoverable drives the machine to Faulted.
type Hooks interface {
	OnInitialize(from State) error
	OnActivate(from State) error
	OnDeactivate(from State) error
	OnEmergencyStop(from State) error
	OnReinitialize(from State) error
	OnShutdown(from State) error
	OnReset(from State) error
}

// NopHooks implements Hooks doing nothing.
type NopHooks struct{}

// OnInitialize implements Hooks.
func (NopHooks) OnInitialize(State) error { return nil }

// OnActivate implements Hooks.
func (NopHooks) OnActivate(State) error { return nil }

// OnDeactivate implements Hooks.
func (NopHooks) OnDeactivate(State) error { return nil }

// OnEmergencyStop implements Hooks.
func (NopHooks) OnEmergencyStop(State) error { return nil }

// OnReinitialize implements Hooks.
func (NopHooks) OnReinitialize(State) error { return nil }

// OnShutdown implements Hooks.
func (NopHooks) OnShutdown(State) error { return nil }

// OnReset implements Hooks.
func (NopHooks) OnReset(State) error { return nil }

// Request asks the machine for a transition.
type Request struct {
	Trigger Trigger
	Source  Source
	// Authenticated is set for host requests after a completed handshake.
	Authenticated bool
	// Reason is free text recorded with the change, e.g. starved watchdogs.
	Reason string
}

// Outcome classifies a Result.
type Outcome int

// Outcomes
const (
	Accepted Outcome = iota
	Rejected
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "fatal"
	}
}

// Result is returned by Machine.Request.
type Result struct {
	Outcome Outcome
	From    State
	To      State
	Err     error
}

// Change describes a committed state change.
type Change struct {
	From    State
	To      State
	Trigger Trigger
	Source  Source
	Reason  string
}

// Observer is notified after each committed change.
// Observers run while the transition lock is held and must not
// request transitions other than TriggerEmergencyStop.
type Observer interface {
	StateChanged(Change)
}

// StateChangedFunc is the func form of Observer.
type StateChangedFunc func(Change)

// StateChanged implements Observer.
func (f StateChangedFunc) StateChanged(c Change) {
	f(c)
}

type rowKey struct {
	from    State
	trigger Trigger
}

type row struct {
	via       State
	hasVia    bool
	next      State
	fallback  State
	operator  bool
	entryHook func(Hooks, State) error
}

var table = map[rowKey]row{
	{Uninitialized, TriggerInitialize}: {
		via: Initializing, hasVia: true, next: Idle, fallback: Uninitialized,
		entryHook: Hooks.OnInitialize,
	},
	{Idle, TriggerActivate}: {
		next: Engaged, fallback: Idle, operator: true,
		entryHook: Hooks.OnActivate,
	},
	{Engaged, TriggerDeactivate}: {
		next: Idle, fallback: EmergencyStop,
		entryHook: Hooks.OnDeactivate,
	},
	{EmergencyStop, TriggerReinitialize}: {
		via: Initializing, hasVia: true, next: Idle, fallback: EmergencyStop,
		entryHook: Hooks.OnReinitialize,
	},
	{Idle, TriggerShutdown}: {
		next: ShuttingDown, fallback: Idle, operator: true,
		entryHook: Hooks.OnShutdown,
	},
	{EmergencyStop, TriggerShutdown}: {
		next: ShuttingDown, fallback: EmergencyStop,
		entryHook: Hooks.OnShutdown,
	},
	{Faulted, TriggerReset}: {
		next: Uninitialized, fallback: Faulted,
		entryHook: Hooks.OnReset,
	},
	{EmergencyStop, TriggerReset}: {
		next: Uninitialized, fallback: Faulted,
		entryHook: Hooks.OnReset,
	},
	{ShuttingDown, TriggerReset}: {
		next: Uninitialized, fallback: Faulted,
		entryHook: Hooks.OnReset,
	},
}

// Machine owns the authoritative VehicleState.
type Machine struct {
	hooks Hooks
	state atomic.Uint32

	lock sync.Mutex

	estopPending atomic.Bool
	estopReq     Request
	estopLock    sync.Mutex

	observers []Observer
	obsLock   sync.RWMutex
}

// NewMachine creates a Machine in Uninitialized.
func NewMachine(hooks Hooks) *Machine {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Machine{hooks: hooks}
}

// State returns the current state. Safe to call from any goroutine.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Observe registers observers.
func (m *Machine) Observe(observers ...Observer) {
	m.obsLock.Lock()
	m.observers = append(m.observers, observers...)
	m.obsLock.Unlock()
}

// Request attempts a transition.
// TriggerEmergencyStop is always Accepted. If another transition is
// running, the stop is latched and applied as soon as that transition
// finishes its hook.
func (m *Machine) Request(req Request) Result {
	if req.Trigger == TriggerEmergencyStop {
		return m.emergencyStop(req)
	}
	m.lock.Lock()
	res := m.transit(req)
	m.lock.Unlock()
	m.drainEmergency()
	return res
}

func (m *Machine) transit(req Request) Result {
	from := m.State()
	r, ok := table[rowKey{from, req.Trigger}]
	if !ok {
		return m.reject(from, req, ErrInvalidTransition)
	}
	if r.operator && !authorized(req) {
		return m.reject(from, req, ErrNotAuthorized)
	}

	if r.hasVia {
		m.commit(r.via, req)
	}
	err := r.entryHook(m.hooks, from)
	if m.estopPending.Load() {
		m.applyEmergency()
		return Result{Outcome: Rejected, From: from, To: m.State(),
			Err: &TransitionError{From: from, Trigger: req.Trigger, Err: ErrPreempted}}
	}
	switch {
	case err == nil:
		m.commit(r.next, req)
		return Result{Outcome: Accepted, From: from, To: r.next}
	case IsUnrecoverable(err) || r.fallback == Faulted:
		glog.Errorf("%s from %s failed: %v", req.Trigger, from, err)
		m.commit(Faulted, req)
		return Result{Outcome: Fatal, From: from, To: Faulted,
			Err: &TransitionError{From: from, Trigger: req.Trigger, Err: err}}
	default:
		glog.Warningf("%s from %s failed: %v", req.Trigger, from, err)
		m.commit(r.fallback, req)
		return Result{Outcome: Rejected, From: from, To: r.fallback,
			Err: &TransitionError{From: from, Trigger: req.Trigger, Err: err}}
	}
}

func authorized(req Request) bool {
	switch req.Source {
	case SourceOperator:
		return true
	case SourceHost:
		return req.Authenticated
	}
	return false
}

func (m *Machine) reject(from State, req Request, err error) Result {
	glog.Warningf("%s requested by %s rejected in %s: %v", req.Trigger, req.Source, from, err)
	return Result{Outcome: Rejected, From: from, To: from,
		Err: &TransitionError{From: from, Trigger: req.Trigger, Err: err}}
}

func (m *Machine) emergencyStop(req Request) Result {
	from := m.State()
	m.estopLock.Lock()
	m.estopReq = req
	m.estopLock.Unlock()
	m.estopPending.Store(true)
	if m.lock.TryLock() {
		m.applyEmergency()
		m.lock.Unlock()
	}
	m.drainEmergency()
	to := EmergencyStop
	if from == Faulted {
		to = Faulted
	}
	return Result{Outcome: Accepted, From: from, To: to}
}

// drainEmergency applies a stop latched while the lock was held
// by another transition.
func (m *Machine) drainEmergency() {
	for m.estopPending.Load() && m.lock.TryLock() {
		m.applyEmergency()
		m.lock.Unlock()
	}
}

// applyEmergency must be called with m.lock held.
func (m *Machine) applyEmergency() {
	if !m.estopPending.Swap(false) {
		return
	}
	m.estopLock.Lock()
	req := m.estopReq
	m.estopLock.Unlock()
	req.Trigger = TriggerEmergencyStop

	from := m.State()
	if from == EmergencyStop || from == Faulted {
		return
	}
	m.commit(EmergencyStop, req)
	if err := m.hooks.OnEmergencyStop(from); err != nil {
		glog.Errorf("emergency stop hook: %v", err)
		if IsUnrecoverable(err) {
			m.commit(Faulted, req)
		}
	}
}

func (m *Machine) commit(to State, req Request) {
	from := State(m.state.Swap(uint32(to)))
	if from == to {
		return
	}
	glog.Infof("state %s -> %s (%s by %s) %s", from, to, req.Trigger, req.Source, req.Reason)
	change := Change{From: from, To: to, Trigger: req.Trigger, Source: req.Source, Reason: req.Reason}
	m.obsLock.RLock()
	observers := m.observers
	m.obsLock.RUnlock()
	for _, o := range observers {
		o.StateChanged(change)
	}
}
