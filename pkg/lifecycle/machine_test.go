package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testHooks struct {
	NopHooks
	calls     []string
	failOn    map[string]error
	onEnter   func(name string)
	callsLock sync.Mutex
}

func (h *testHooks) call(name string) error {
	h.callsLock.Lock()
	h.calls = append(h.calls, name)
	h.callsLock.Unlock()
	if h.onEnter != nil {
		h.onEnter(name)
	}
	return h.failOn[name]
}

func (h *testHooks) OnInitialize(State) error    { return h.call("initialize") }
func (h *testHooks) OnActivate(State) error      { return h.call("activate") }
func (h *testHooks) OnDeactivate(State) error    { return h.call("deactivate") }
func (h *testHooks) OnEmergencyStop(State) error { return h.call("estop") }
func (h *testHooks) OnReinitialize(State) error  { return h.call("reinitialize") }
func (h *testHooks) OnShutdown(State) error      { return h.call("shutdown") }
func (h *testHooks) OnReset(State) error         { return h.call("reset") }

var (
	hostReq     = Request{Source: SourceHost, Authenticated: true}
	operatorReq = Request{Source: SourceOperator}
)

func req(base Request, trigger Trigger) Request {
	base.Trigger = trigger
	return base
}

func engaged(t *testing.T, h Hooks) *Machine {
	m := NewMachine(h)
	require.Equal(t, Accepted, m.Request(req(hostReq, TriggerInitialize)).Outcome)
	require.Equal(t, Accepted, m.Request(req(hostReq, TriggerActivate)).Outcome)
	require.Equal(t, Engaged, m.State())
	return m
}

func TestNormalLifecycle(t *testing.T) {
	h := &testHooks{}
	m := NewMachine(h)
	var changes []Change
	m.Observe(StateChangedFunc(func(c Change) { changes = append(changes, c) }))

	require.Equal(t, Uninitialized, m.State())
	res := m.Request(req(hostReq, TriggerInitialize))
	require.Equal(t, Result{Outcome: Accepted, From: Uninitialized, To: Idle}, res)
	require.Equal(t, Accepted, m.Request(req(hostReq, TriggerActivate)).Outcome)
	require.Equal(t, Accepted, m.Request(req(hostReq, TriggerDeactivate)).Outcome)
	require.Equal(t, Idle, m.State())
	require.Equal(t, []string{"initialize", "activate", "deactivate"}, h.calls)

	var path []State
	for _, c := range changes {
		path = append(path, c.To)
	}
	require.Equal(t, []State{Initializing, Idle, Engaged, Idle}, path)
}

func TestActivateRequiresAuthority(t *testing.T) {
	testCases := []struct {
		name    string
		req     Request
		trigger Trigger
		outcome Outcome
		state   State
	}{
		{"authenticated host", hostReq, TriggerActivate, Accepted, Engaged},
		{"unauthenticated host", Request{Source: SourceHost}, TriggerActivate, Rejected, Idle},
		{"operator", operatorReq, TriggerActivate, Accepted, Engaged},
		{"watchdog", Request{Source: SourceWatchdog}, TriggerActivate, Rejected, Idle},
		{"system", Request{Source: SourceSystem}, TriggerActivate, Rejected, Idle},
		{"authenticated host shutdown", hostReq, TriggerShutdown, Accepted, ShuttingDown},
		{"unauthenticated host shutdown", Request{Source: SourceHost}, TriggerShutdown, Rejected, Idle},
		{"watchdog shutdown", Request{Source: SourceWatchdog}, TriggerShutdown, Rejected, Idle},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine(nil)
			m.Request(req(Request{Source: SourceSystem}, TriggerInitialize))
			res := m.Request(req(tc.req, tc.trigger))
			require.Equal(t, tc.outcome, res.Outcome)
			if tc.outcome == Rejected {
				require.True(t, errors.Is(res.Err, ErrNotAuthorized))
			}
			require.Equal(t, tc.state, m.State())
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	m := NewMachine(nil)
	res := m.Request(req(hostReq, TriggerActivate))
	require.Equal(t, Rejected, res.Outcome)
	require.True(t, errors.Is(res.Err, ErrInvalidTransition))
	require.Equal(t, Uninitialized, m.State())

	res = m.Request(req(hostReq, TriggerReinitialize))
	require.Equal(t, Rejected, res.Outcome)
	res = m.Request(req(hostReq, TriggerDeactivate))
	require.Equal(t, Rejected, res.Outcome)
}

func TestEmergencyStopFromAnyState(t *testing.T) {
	setups := map[State][]Trigger{
		Uninitialized: nil,
		Idle:          {TriggerInitialize},
		Engaged:       {TriggerInitialize, TriggerActivate},
		EmergencyStop: {TriggerEmergencyStop},
		ShuttingDown:  {TriggerInitialize, TriggerShutdown},
	}
	for state, triggers := range setups {
		t.Run(state.String(), func(t *testing.T) {
			h := &testHooks{}
			m := NewMachine(h)
			for _, tr := range triggers {
				m.Request(req(hostReq, tr))
			}
			require.Equal(t, state, m.State())
			res := m.Request(Request{Trigger: TriggerEmergencyStop, Source: SourceWatchdog})
			require.Equal(t, Accepted, res.Outcome)
			require.Equal(t, EmergencyStop, m.State())
		})
	}
}

func TestEmergencyStopKeepsFaulted(t *testing.T) {
	h := &testHooks{failOn: map[string]error{"activate": Unrecoverable(errors.New("motor controller absent"))}}
	m := NewMachine(h)
	m.Request(req(hostReq, TriggerInitialize))
	res := m.Request(req(hostReq, TriggerActivate))
	require.Equal(t, Fatal, res.Outcome)
	require.Equal(t, Faulted, m.State())

	res = m.Request(Request{Trigger: TriggerEmergencyStop})
	require.Equal(t, Accepted, res.Outcome)
	require.Equal(t, Faulted, res.To)
	require.Equal(t, Faulted, m.State())

	// faulted refuses re-initialization until reset
	require.Equal(t, Rejected, m.Request(req(hostReq, TriggerReinitialize)).Outcome)
	require.Equal(t, Rejected, m.Request(req(hostReq, TriggerInitialize)).Outcome)
	require.Equal(t, Accepted, m.Request(req(hostReq, TriggerReset)).Outcome)
	require.Equal(t, Uninitialized, m.State())
}

func TestEmergencyStopIdempotent(t *testing.T) {
	h := &testHooks{}
	m := engaged(t, h)
	for i := 0; i < 3; i++ {
		require.Equal(t, Accepted, m.Request(Request{Trigger: TriggerEmergencyStop}).Outcome)
	}
	require.Equal(t, []string{"initialize", "activate", "estop"}, h.calls)
}

func TestHookFailures(t *testing.T) {
	testCases := []struct {
		name    string
		failOn  string
		err     error
		setup   []Trigger
		trigger Trigger
		outcome Outcome
		state   State
	}{
		{"initialize recoverable", "initialize", errors.New("x"), nil, TriggerInitialize, Rejected, Uninitialized},
		{"initialize unrecoverable", "initialize", Unrecoverable(errors.New("x")), nil, TriggerInitialize, Fatal, Faulted},
		{"activate recoverable", "activate", errors.New("x"), []Trigger{TriggerInitialize}, TriggerActivate, Rejected, Idle},
		{"deactivate falls back to stop", "deactivate", errors.New("x"), []Trigger{TriggerInitialize, TriggerActivate}, TriggerDeactivate, Rejected, EmergencyStop},
		{"reinitialize stays stopped", "reinitialize", errors.New("stale"), []Trigger{TriggerEmergencyStop}, TriggerReinitialize, Rejected, EmergencyStop},
		{"reset without fallback", "reset", errors.New("x"), []Trigger{TriggerEmergencyStop}, TriggerReset, Fatal, Faulted},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHooks{}
			m := NewMachine(h)
			for _, tr := range tc.setup {
				m.Request(req(hostReq, tr))
			}
			h.failOn = map[string]error{tc.failOn: tc.err}
			res := m.Request(req(hostReq, tc.trigger))
			require.Equal(t, tc.outcome, res.Outcome)
			require.Equal(t, tc.state, m.State())
			require.Error(t, res.Err)
		})
	}
}

func TestEmergencyStopDuringTransition(t *testing.T) {
	h := &testHooks{}
	m := NewMachine(h)
	m.Request(req(hostReq, TriggerInitialize))
	h.onEnter = func(name string) {
		if name == "activate" {
			res := m.Request(Request{Trigger: TriggerEmergencyStop, Source: SourceWatchdog})
			require.Equal(t, Accepted, res.Outcome)
		}
	}
	res := m.Request(req(hostReq, TriggerActivate))
	require.Equal(t, Rejected, res.Outcome)
	require.True(t, errors.Is(res.Err, ErrPreempted))
	require.Equal(t, EmergencyStop, m.State())
}

func TestConcurrentEmergencyStop(t *testing.T) {
	for i := 0; i < 50; i++ {
		m := NewMachine(nil)
		m.Request(req(hostReq, TriggerInitialize))
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.Request(req(hostReq, TriggerActivate))
			m.Request(req(hostReq, TriggerDeactivate))
		}()
		go func() {
			defer wg.Done()
			m.Request(req(hostReq, TriggerShutdown))
		}()
		go func() {
			defer wg.Done()
			res := m.Request(Request{Trigger: TriggerEmergencyStop, Source: SourceWatchdog})
			require.Equal(t, Accepted, res.Outcome)
		}()
		wg.Wait()
		// every path either ended in the stop or was stopped afterwards
		st := m.State()
		if st != EmergencyStop {
			require.Equal(t, Accepted, m.Request(Request{Trigger: TriggerEmergencyStop}).Outcome)
			require.Equal(t, EmergencyStop, m.State())
		}
	}
}

func TestTriggerFor(t *testing.T) {
	testCases := []struct {
		from, to State
		trigger  Trigger
		ok       bool
	}{
		{Uninitialized, Idle, TriggerInitialize, true},
		{Idle, Engaged, TriggerActivate, true},
		{Engaged, Idle, TriggerDeactivate, true},
		{EmergencyStop, Idle, TriggerReinitialize, true},
		{Engaged, EmergencyStop, TriggerEmergencyStop, true},
		{Faulted, Uninitialized, TriggerReset, true},
		{Idle, ShuttingDown, TriggerShutdown, true},
		{Idle, Idle, 0, false},
		{Idle, Faulted, 0, false},
	}
	for _, tc := range testCases {
		trigger, ok := TriggerFor(tc.from, tc.to)
		require.Equal(t, tc.ok, ok, "%s -> %s", tc.from, tc.to)
		if ok {
			require.Equal(t, tc.trigger, trigger)
		}
	}
}

func TestParseState(t *testing.T) {
	for s, name := range stateNames {
		parsed, err := ParseState(name)
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	s, err := ParseState("ESTOP")
	require.NoError(t, err)
	require.Equal(t, EmergencyStop, s)
	_, err = ParseState("flying")
	require.Error(t, err)
}
