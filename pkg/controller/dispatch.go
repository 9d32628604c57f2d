package controller

import (
	"github.com/golang/glog"

	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/packet"
	"github.com/robotalks/kart.go/pkg/rc"
)

// packetMsg carries a host packet into the control loop.
type packetMsg struct {
	Packet packet.Packet
}

// NewMessage implements fx.Message.
func (m *packetMsg) NewMessage() fx.Message {
	return &packetMsg{}
}

// rcActionMsg carries an operator action into the control loop.
type rcActionMsg struct {
	Action rc.Action
}

// NewMessage implements fx.Message.
func (m *rcActionMsg) NewMessage() fx.Message {
	return &rcActionMsg{}
}

// ProcessMessage implements fx.MessageProcessor.
func (c *Controller) ProcessMessage(mc fx.MessageProcessingContext) {
	switch msg := mc.CurrentMessage().(type) {
	case *packetMsg:
		c.dispatch(msg.Packet)
	case *rcActionMsg:
		c.operatorAction(msg.Action)
	default:
		return
	}
	mc.MessageTaken()
}

// ignoresRCStop tells whether the RC emergency switch has nothing to
// stop in state.
func ignoresRCStop(state lifecycle.State) bool {
	switch state {
	case lifecycle.Uninitialized, lifecycle.Initializing, lifecycle.Idle,
		lifecycle.EmergencyStop, lifecycle.Faulted:
		return true
	}
	return false
}

func (c *Controller) operatorAction(action rc.Action) {
	state := c.State()
	switch action {
	case rc.ActionEmergencyStop:
		if ignoresRCStop(state) {
			return
		}
		c.sendLog(packet.SeverityFatal, "RC emergency switch in %s", state)
		c.emergencyStop(lifecycle.SourceOperator, "RC emergency switch")
	case rc.ActionActivate:
		if state != lifecycle.Idle {
			return
		}
		c.request(lifecycle.Request{
			Trigger: lifecycle.TriggerActivate,
			Source:  lifecycle.SourceOperator,
			Reason:  "RC emergency switch released",
		})
	}
}

func (c *Controller) request(req lifecycle.Request) lifecycle.Result {
	res := c.Machine.Request(req)
	if res.Outcome != lifecycle.Accepted {
		c.sendLog(packet.SeverityWarning, "%s %s: %v", req.Trigger, res.Outcome, res.Err)
	}
	return res
}

// dispatch handles a host packet in the control loop.
func (c *Controller) dispatch(pkt packet.Packet) {
	switch p := pkt.(type) {
	case *packet.Handshake1:
		c.send(&packet.Handshake2{Seq: p.Seq + 1})
		if !c.authenticated.Swap(true) {
			glog.Infof("host authenticated, seq %d", p.Seq)
		}
	case *packet.Handshake2:
		glog.V(1).Infof("unexpected handshake reply seq %d", p.Seq)
	case *packet.GetFirmwareVersion:
		c.send(&packet.FirmwareVersion{
			Major: c.Firmware.Major,
			Minor: c.Firmware.Minor,
			Patch: c.Firmware.Patch,
		})
	case *packet.FirmwareVersion:
		glog.Infof("host firmware %s", p)
	case *packet.Config:
		c.compareConfig(p)
	case *packet.StateTransition:
		c.stateTransition(lifecycle.State(p.State))
	case *packet.Shutdown1:
		c.shutdownSeq, c.shutdownArmed = p.Seq, true
		glog.Infof("shutdown armed, seq %d", p.Seq)
	case *packet.Shutdown2:
		if !c.shutdownArmed || p.Seq != c.shutdownSeq+1 {
			c.shutdownArmed = false
			c.sendLog(packet.SeverityWarning, "shutdown seq %d not confirmed", p.Seq)
			return
		}
		c.shutdownArmed = false
		c.request(lifecycle.Request{
			Trigger:       lifecycle.TriggerShutdown,
			Source:        lifecycle.SourceHost,
			Authenticated: c.Authenticated(),
			Reason:        "host shutdown",
		})
	case *packet.Sensor:
		if glog.V(2) {
			glog.Infof("host sensor %s", packet.String(p))
		}
	case *packet.Log:
		hostLog(p)
	case *packet.RcControl:
		if glog.V(2) {
			glog.Infof("host rc echo %s", packet.String(p))
		}
	case *packet.ResetRTC:
		c.request(lifecycle.Request{
			Trigger:       lifecycle.TriggerReset,
			Source:        lifecycle.SourceHost,
			Authenticated: c.Authenticated(),
			Reason:        "host reset",
		})
	case *packet.Heartbeat, *packet.Control:
		// handled on arrival
	default:
		glog.Warningf("unhandled packet %s", pkt.Type())
	}
}

func (c *Controller) stateTransition(target lifecycle.State) {
	if !target.IsValid() {
		c.sendLog(packet.SeverityWarning, "invalid state %d", uint8(target))
		return
	}
	if target == lifecycle.EmergencyStop {
		c.emergencyStop(lifecycle.SourceHost, "host request")
		return
	}
	if !c.Authenticated() {
		c.sendLog(packet.SeverityWarning, "transition to %s rejected: not authenticated", target)
		return
	}
	from := c.State()
	if from == target {
		return
	}
	trigger, ok := lifecycle.TriggerFor(from, target)
	if !ok {
		c.sendLog(packet.SeverityWarning, "no transition %s -> %s", from, target)
		return
	}
	if trigger == lifecycle.TriggerActivate && c.Arbiter.StopHeld(c.now()) {
		c.sendLog(packet.SeverityWarning, "transition to %s rejected: RC emergency switch", target)
		return
	}
	c.request(lifecycle.Request{
		Trigger:       trigger,
		Source:        lifecycle.SourceHost,
		Authenticated: true,
		Reason:        "host request",
	})
}

// compareConfig logs differences between the host's view of timing
// and the running configuration. The running configuration is never
// changed.
func (c *Controller) compareConfig(p *packet.Config) {
	check := func(name string, host uint32, dog string, tolerance bool) {
		w, ok := c.Watchdog(dog)
		if !ok {
			return
		}
		local := w.Interval
		if tolerance {
			local = w.Tolerance
		}
		if ms := uint32(local.Milliseconds()); ms != host {
			glog.Warningf("host config %s=%dms, running %dms", name, host, ms)
		}
	}
	check("pc_heartbeat_interval", p.PCHeartbeatInterval, WatchdogHostHeartbeat, false)
	check("pc_heartbeat_tolerance", p.PCHeartbeatTolerance, WatchdogHostHeartbeat, true)
	check("control_interval", p.ControlInterval, WatchdogControl, false)
	check("control_tolerance", p.ControlTolerance, WatchdogControl, true)
	if ms := uint32(c.HeartbeatInterval.Milliseconds()); ms != p.MCUHeartbeatInterval {
		glog.Warningf("host config mcu_heartbeat_interval=%dms, running %dms", p.MCUHeartbeatInterval, ms)
	}
}

func hostLog(p *packet.Log) {
	switch p.Severity {
	case packet.SeverityDebug:
		glog.V(1).Infof("host: %s", p.Text)
	case packet.SeverityInfo:
		glog.Infof("host: %s", p.Text)
	case packet.SeverityWarning:
		glog.Warningf("host: %s", p.Text)
	default:
		glog.Errorf("host %s: %s", p.Severity, p.Text)
	}
}
