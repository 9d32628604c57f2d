package controller

import (
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/actuation"
	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/packet"
	"github.com/robotalks/kart.go/pkg/rc"
)

// AddToLoop implements fx.LoopAdder.
// Stages run in priority order on every iteration:
// supervise, sense, control, actuate, then report.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	c.loop = loop
	loop.AddController(fx.PrLvSupervise, fx.ControlFunc(c.supervise))
	loop.AddController(fx.PrLvSense, fx.ControlFunc(c.sense))
	loop.AddController(fx.PrLvControl, fx.ControlFunc(c.control))
	loop.AddController(fx.PrLvActuate, fx.ControlFunc(c.actuate))
	loop.AddController(fx.PrLvPostProc, fx.ControlFunc(c.report))
}

func (c *Controller) supervise(cc fx.ControlContext) error {
	now := cc.Time()
	if c.started.IsZero() {
		c.started = now
	}
	if c.AutoInitialize && c.State() == lifecycle.Uninitialized {
		c.request(lifecycle.Request{
			Trigger: lifecycle.TriggerInitialize,
			Source:  lifecycle.SourceSystem,
			Reason:  "startup",
		})
	}
	c.Registry.FeedAt(WatchdogController, now)
	if v := c.Registry.Tick(now); v.Fault != nil {
		c.HandleFault(*v.Fault)
	}
	return nil
}

func (c *Controller) sense(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(c)
	now := cc.Time()
	if c.SensorInterval > 0 && now.Sub(c.lastSensor) < c.SensorInterval {
		return nil
	}
	c.lastSensor = now
	fb := c.Encoder.Feedback()
	sensor := &packet.Sensor{}
	if fb.HasSpeed() {
		speed := float32(fb.Speed)
		sensor.WheelSpeedRL, sensor.WheelSpeedRR = speed, speed
	}
	if fb.HasSteering() {
		sensor.SteeringAngle = float32(fb.SteeringAngle)
	}
	c.send(sensor)
	c.Registry.FeedAt(WatchdogSensor, now)
	return nil
}

// control selects the command for this iteration.
func (c *Controller) control(cc fx.ControlContext) error {
	c.command = c.selectCommand(cc.Time(), c.State())
	return nil
}

// selectCommand prefers the RC operator, then a fresh host command
// while Engaged, and falls back to the safety command.
func (c *Controller) selectCommand(now time.Time, state lifecycle.State) actuation.Command {
	if cmd, ok := c.Arbiter.Command(now); ok {
		return cmd
	}
	if state == lifecycle.Engaged && c.Registry.Fresh(WatchdogControl, now) {
		if cmd, ok := c.hostCommand(); ok {
			return cmd
		}
	}
	return actuation.SafetyCommand
}

func (c *Controller) actuate(cc fx.ControlContext) error {
	c.Encoder.Apply(c.command, c.State())
	return nil
}

func (c *Controller) report(cc fx.ControlContext) error {
	now := cc.Time()
	state := c.State()
	rcState := c.Arbiter.State(now)
	mode := c.Arbiter.Mode()

	lights := LightsFor(state, rcState.Connected, mode, flashOn(c.started, now, c.FlashPeriod))
	if !c.lightsSet || lights != c.lights {
		c.lights, c.lightsSet = lights, true
		if c.Lights != nil {
			c.Lights.SetLights(lights)
		}
	}

	if now.Sub(c.lastHeartbeat) >= c.HeartbeatInterval {
		c.lastHeartbeat = now
		c.send(&packet.Heartbeat{Counter: c.heartbeats, State: uint8(state)})
		c.heartbeats++
	}

	if rcState.Connected {
		if in, ok := c.Arbiter.TakeEcho(); ok {
			c.send(echoOf(in))
		}
	}

	if now.Sub(c.lastStatus) >= c.StatusInterval {
		c.lastStatus = now
		st := c.status(now, state, rcState.Connected, rcState.Commanding, mode)
		if len(st.Starved) > 0 && glog.V(1) {
			glog.Infof("starved: %s", strings.Join(st.Starved, ", "))
		}
		c.Reporter.Status(st)
	}
	return nil
}

func (c *Controller) status(now time.Time, state lifecycle.State, connected, commanding bool, mode rc.Mode) Status {
	st := Status{
		Time:          now,
		State:         state,
		Mode:          mode,
		RCConnected:   connected,
		RCCommanding:  commanding,
		Authenticated: c.Authenticated(),
		Command:       c.command,
		Lights:        c.lights,
		Feedback:      c.Encoder.Feedback(),
	}
	for _, s := range c.Registry.Snapshot(now) {
		if s.Starved {
			st.Starved = append(st.Starved, s.Name)
		}
	}
	return st
}

func echoOf(in rc.Input) *packet.RcControl {
	return &packet.RcControl{
		Throttle:     float32(in.Throttle),
		Steering:     float32(in.Steering),
		Brake:        float32(in.Brake),
		AutonomyMode: uint8(in.Mode),
		IsActive:     in.Active,
	}
}
