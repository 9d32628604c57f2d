package kart

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/kart.go/pkg/cli/sh"
	"github.com/robotalks/kart.go/pkg/controller"
	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/packet"
)

func stateCmd(name string, aliases []string, state lifecycle.State) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Send(c, &packet.StateTransition{State: uint8(state)})
		}),
	}
}

func parseOnOff(c *ishell.Context) (bool, error) {
	if len(c.Args) != 1 {
		return false, fmt.Errorf("on|off expected")
	}
	switch c.Args[0] {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("on|off expected, got %q", c.Args[0])
}

func seqArg(c *ishell.Context) (uint32, error) {
	if len(c.Args) == 0 {
		return rand.Uint32() >> 1, nil
	}
	seq, err := strconv.ParseUint(c.Args[0], 0, 32)
	return uint32(seq), err
}

// MissedHeartbeats is the number of vehicle heartbeats the host
// tolerates missing.
const MissedHeartbeats = 10

// ConfigPacket builds a Config packet from watchdog configuration.
func ConfigPacket(conf *controller.Config) *packet.Config {
	ms := func(name string) (uint32, uint32) {
		w, _ := conf.Watchdog(name)
		return uint32(w.Interval.Milliseconds()), uint32(w.Tolerance.Milliseconds())
	}
	var pkt packet.Config
	pkt.MCUHeartbeatInterval = uint32(conf.HeartbeatInterval.Milliseconds())
	pkt.MCUHeartbeatTolerance = pkt.MCUHeartbeatInterval * MissedHeartbeats
	pkt.PCHeartbeatInterval, pkt.PCHeartbeatTolerance = ms(controller.WatchdogHostHeartbeat)
	pkt.ControlInterval, pkt.ControlTolerance = ms(controller.WatchdogControl)
	return &pkt
}

var (
	// HandshakeCmd authenticates the host.
	HandshakeCmd = ishell.Cmd{
		Name:    "handshake",
		Aliases: []string{"hs"},
		Help:    "[SEQ]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			seq, err := seqArg(c)
			if err != nil {
				c.Err(err)
				return
			}
			res, err := sh.DoRequest(c, &packet.Handshake1{Seq: seq}, packet.TypeHandshake2)
			if err != nil {
				return
			}
			if res.(*packet.Handshake2).Seq != seq+1 {
				c.Err(fmt.Errorf("handshake mismatch: sent %d", seq))
			}
		}),
	}

	// VersionCmd queries the firmware version.
	VersionCmd = ishell.Cmd{
		Name:    "version",
		Aliases: []string{"ver"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoRequest(c, &packet.GetFirmwareVersion{}, packet.TypeFirmwareVersion)
		}),
	}

	// StateCmd requests a state transition by name.
	StateCmd = ishell.Cmd{
		Name:    "state",
		Aliases: []string{"st"},
		Help:    "NAME",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("state name expected"))
				return
			}
			state, err := lifecycle.ParseState(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sh.Send(c, &packet.StateTransition{State: uint8(state)})
		}),
	}

	// ControlCmd sends one actuation command.
	ControlCmd = ishell.Cmd{
		Name:    "control",
		Aliases: []string{"ctl"},
		Help:    "THROTTLE STEERING BRAKE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 3 {
				c.Err(fmt.Errorf("THROTTLE STEERING BRAKE expected"))
				return
			}
			var vals [3]float32
			for n, arg := range c.Args {
				v, err := strconv.ParseFloat(arg, 32)
				if err != nil {
					c.Err(err)
					return
				}
				vals[n] = float32(v)
			}
			sh.Send(c, &packet.Control{Throttle: vals[0], Steering: vals[1], Brake: vals[2]})
		}),
	}

	// HeartbeatCmd toggles the host keep-alive.
	HeartbeatCmd = ishell.Cmd{
		Name:    "heartbeat",
		Aliases: []string{"hb"},
		Help:    "on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			on, err := parseOnOff(c)
			if err != nil {
				c.Err(err)
				return
			}
			sh.ShellFrom(c).Conn.Heartbeat.Store(on)
		}),
	}

	// WatchCmd toggles printing heartbeat, sensor and radio packets.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "on|off",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			on, err := parseOnOff(c)
			if err != nil {
				c.Err(err)
				return
			}
			sh.ShellFrom(c).Conn.Watch.Store(on)
		}),
	}

	// ShutdownCmd runs the two-phase shutdown.
	ShutdownCmd = ishell.Cmd{
		Name: "shutdown",
		Help: "[SEQ]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			seq, err := seqArg(c)
			if err != nil {
				c.Err(err)
				return
			}
			if sh.Send(c, &packet.Shutdown1{Seq: seq}) == nil {
				sh.Send(c, &packet.Shutdown2{Seq: seq + 1})
			}
		}),
	}

	// ResetCmd leaves a terminal state.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.Send(c, &packet.ResetRTC{})
		}),
	}

	// ConfigCmd sends the host timing, factory values by default.
	ConfigCmd = ishell.Cmd{
		Name:    "config",
		Aliases: []string{"cfg"},
		Help:    "[PC_HB_INTERVAL PC_HB_TOLERANCE CONTROL_INTERVAL CONTROL_TOLERANCE] (ms)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			conf := controller.DefaultConfig()
			pkt := ConfigPacket(&conf)
			if len(c.Args) > 0 {
				if len(c.Args) != 4 {
					c.Err(fmt.Errorf("4 values expected"))
					return
				}
				fields := []*uint32{&pkt.PCHeartbeatInterval, &pkt.PCHeartbeatTolerance, &pkt.ControlInterval, &pkt.ControlTolerance}
				for n, arg := range c.Args {
					v, err := strconv.ParseUint(arg, 10, 32)
					if err != nil {
						c.Err(err)
						return
					}
					*fields[n] = uint32(v)
				}
			}
			sh.Send(c, pkt)
		}),
	}
)

func init() {
	sh.AddCmds(
		&HandshakeCmd,
		&VersionCmd,
		&StateCmd,
		stateCmd("activate", []string{"go"}, lifecycle.Engaged),
		stateCmd("deactivate", []string{"idle"}, lifecycle.Idle),
		stateCmd("estop", []string{"stop", "x"}, lifecycle.EmergencyStop),
		&ControlCmd,
		&HeartbeatCmd,
		&WatchCmd,
		&ShutdownCmd,
		&ResetCmd,
		&ConfigCmd,
	)
}
