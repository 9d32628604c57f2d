package controller

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/actuation"
	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/packet"
	"github.com/robotalks/kart.go/pkg/rc"
	"github.com/robotalks/kart.go/pkg/sbus"
	"github.com/robotalks/kart.go/pkg/watchdog"
)

// Sender queues packets to the host. It must not block.
type Sender interface {
	Send(packet.Packet) error
}

// Status is the periodic vehicle report.
type Status struct {
	Time          time.Time
	State         lifecycle.State
	Mode          rc.Mode
	RCConnected   bool
	RCCommanding  bool
	Authenticated bool
	Command       actuation.Command
	Lights        LightState
	Starved       []string
	Feedback      actuation.Feedback
}

// Reporter receives vehicle events, e.g. for telemetry.
// Calls are made from the control loop and must not block.
type Reporter interface {
	StateChanged(lifecycle.Change)
	Fault(watchdog.FaultEvent)
	Status(Status)
	Log(severity packet.Severity, text string)
}

// NopReporter discards reports.
type NopReporter struct{}

// StateChanged implements Reporter.
func (NopReporter) StateChanged(lifecycle.Change) {}

// Fault implements Reporter.
func (NopReporter) Fault(watchdog.FaultEvent) {}

// Status implements Reporter.
func (NopReporter) Status(Status) {}

// Log implements Reporter.
func (NopReporter) Log(packet.Severity, string) {}

// Controller is the composition root of the vehicle. It owns the
// state machine and the watchdogs, and drives actuation from the
// control loop.
type Controller struct {
	Config
	Machine  *lifecycle.Machine
	Registry *watchdog.Registry
	Arbiter  *rc.Arbiter
	Encoder  *actuation.Encoder
	Link     Sender
	Lights   Lights
	Reporter Reporter
	Clock    func() time.Time

	loop *fx.Loop

	// written by inbound goroutines, read by the loop
	hostCmd       atomic.Pointer[actuation.Command]
	authenticated atomic.Bool

	// owned by the loop
	shutdownSeq   uint32
	shutdownArmed bool
	heartbeats    uint8
	command       actuation.Command
	lights        LightState
	lightsSet     bool
	started       time.Time
	lastHeartbeat time.Time
	lastSensor    time.Time
	lastStatus    time.Time
}

// New creates a Controller. The Encoder feeds the actuation watchdog
// after every apply.
func New(conf Config, enc *actuation.Encoder, arb *rc.Arbiter, link Sender) (*Controller, error) {
	c := &Controller{
		Config:   conf,
		Registry: watchdog.NewRegistry(),
		Arbiter:  arb,
		Encoder:  enc,
		Link:     link,
		Lights:   LogLights{},
		Reporter: NopReporter{},
		Clock:    time.Now,
		command:  actuation.SafetyCommand,
	}
	if conf.WakeupInterval > 0 {
		c.Registry.WakeupInterval = conf.WakeupInterval
	}
	c.Registry.Now = c.now
	c.Registry.Handler = c
	var errs fx.AggregatedError
	for _, w := range conf.Watchdogs {
		if err := c.Registry.Register(w.Name, w.Interval, w.Tolerance); err != nil {
			errs.Add(fmt.Errorf("watchdog %s: %w", w.Name, err))
		}
	}
	if err := errs.Aggregate(); err != nil {
		return nil, err
	}
	c.Machine = lifecycle.NewMachine(c)
	c.Machine.Observe(c)
	enc.Applied = func() { c.Registry.Feed(WatchdogActuation) }
	return c, nil
}

func (c *Controller) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// State returns the vehicle state.
func (c *Controller) State() lifecycle.State {
	return c.Machine.State()
}

// Authenticated reports whether the host completed the handshake.
func (c *Controller) Authenticated() bool {
	return c.authenticated.Load()
}

func (c *Controller) send(pkt packet.Packet) {
	if c.Link == nil {
		return
	}
	if err := c.Link.Send(pkt); err != nil {
		glog.Warningf("send %s: %v", pkt.Type(), err)
	}
}

// sendLog reports text to the host and the reporter.
func (c *Controller) sendLog(severity packet.Severity, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	c.send(&packet.Log{Severity: severity, Text: text})
	c.Reporter.Log(severity, text)
}

func (c *Controller) emergencyStop(source lifecycle.Source, reason string) {
	c.Machine.Request(lifecycle.Request{
		Trigger: lifecycle.TriggerEmergencyStop,
		Source:  source,
		Reason:  reason,
	})
}

// HandlePacket implements hostlink.PacketHandler. It runs on the link
// reader goroutine: freshness is recorded immediately, everything
// else is handed to the control loop.
func (c *Controller) HandlePacket(ctx context.Context, pkt packet.Packet) {
	switch p := pkt.(type) {
	case *packet.Heartbeat:
		c.Registry.Feed(WatchdogHostHeartbeat)
		return
	case *packet.Control:
		cmd := actuation.Command{
			Throttle: float64(p.Throttle),
			Steering: float64(p.Steering),
			Brake:    float64(p.Brake),
			Source:   actuation.SourceHost,
		}
		if !cmd.IsFinite() {
			glog.Warningf("dropped non-finite control %s", packet.String(p))
			return
		}
		c.hostCmd.Store(&cmd)
		c.Registry.Feed(WatchdogControl)
		return
	}
	if c.loop == nil {
		glog.Warningf("dropped %s: controller not running", pkt.Type())
		return
	}
	c.loop.PostMessage(&packetMsg{Packet: pkt})
	c.loop.TriggerNext()
}

// HandleFrame implements sbus.FrameHandler. It runs on the radio
// reader goroutine.
func (c *Controller) HandleFrame(f sbus.Frame) {
	now := c.now()
	action := c.Arbiter.Update(f, now)
	if f.Failsafe {
		return
	}
	c.Registry.FeedAt(WatchdogRC, now)
	if action == rc.ActionEmergencyStop && ignoresRCStop(c.State()) {
		return
	}
	if action != rc.ActionNone && c.loop != nil {
		c.loop.PostMessage(&rcActionMsg{Action: action})
		c.loop.TriggerNext()
	}
}

// LinkActivity feeds the comm link watchdog, see hostlink.Link.Activity.
func (c *Controller) LinkActivity() {
	c.Registry.Feed(WatchdogCommLink)
}

// HandleFault implements watchdog.FaultHandler.
func (c *Controller) HandleFault(ev watchdog.FaultEvent) {
	glog.Errorf("watchdog starved: %s (episode %s)", strings.Join(ev.Watchdogs, ", "), ev.Episode)
	for _, name := range ev.Watchdogs {
		if name == WatchdogRC {
			c.Arbiter.Disconnect()
		}
	}
	c.emergencyStop(lifecycle.SourceWatchdog, "starved "+strings.Join(ev.Watchdogs, ","))
	c.Reporter.Fault(ev)
}

// StateChanged implements lifecycle.Observer.
func (c *Controller) StateChanged(change lifecycle.Change) {
	// Initializing keeps the timers armed so a re-initialization
	// validates what was armed in EmergencyStop.
	if change.To != lifecycle.Initializing {
		c.Registry.ArmOnly(c.now(), ArmedIn(change.To, c.Arbiter.StopOnDisconnect)...)
	}
	c.sendLog(packet.SeverityInfo, "state %s -> %s (%s)", change.From, change.To, change.Trigger)
	c.Reporter.StateChanged(change)
}

// OnInitialize implements lifecycle.Hooks.
func (c *Controller) OnInitialize(from lifecycle.State) error {
	c.hostCmd.Store(nil)
	glog.Infof("initializing, firmware %s", c.Firmware)
	return nil
}

// OnActivate implements lifecycle.Hooks.
func (c *Controller) OnActivate(from lifecycle.State) error {
	c.hostCmd.Store(nil)
	return nil
}

// OnDeactivate implements lifecycle.Hooks.
func (c *Controller) OnDeactivate(from lifecycle.State) error {
	c.hostCmd.Store(nil)
	return nil
}

// OnEmergencyStop implements lifecycle.Hooks.
func (c *Controller) OnEmergencyStop(from lifecycle.State) error {
	c.hostCmd.Store(nil)
	c.sendLog(packet.SeverityError, "emergency stop from %s", from)
	return nil
}

// OnReinitialize implements lifecycle.Hooks.
func (c *Controller) OnReinitialize(from lifecycle.State) error {
	c.hostCmd.Store(nil)
	return c.Registry.Validate(c.now())
}

// OnShutdown implements lifecycle.Hooks.
func (c *Controller) OnShutdown(from lifecycle.State) error {
	glog.Info("shutting down")
	return nil
}

// OnReset implements lifecycle.Hooks.
func (c *Controller) OnReset(from lifecycle.State) error {
	c.shutdownArmed = false
	return nil
}

// hostCommand returns the last host command if one was received
// since the last transition.
func (c *Controller) hostCommand() (actuation.Command, bool) {
	if cmd := c.hostCmd.Load(); cmd != nil {
		return *cmd, true
	}
	return actuation.Command{}, false
}
