package packet

import "fmt"

// Type is the packet type id, the first payload byte.
type Type byte

// Packet types
const (
	TypeHandshake1         Type = 0x04
	TypeHandshake2         Type = 0x05
	TypeGetFirmwareVersion Type = 0x06
	TypeFirmwareVersion    Type = 0x07
	TypeConfig             Type = 0xA0
	TypeStateTransition    Type = 0xA1
	TypeShutdown1          Type = 0xA2
	TypeShutdown2          Type = 0xA3
	TypeHeartbeat          Type = 0xAA
	TypeControl            Type = 0xAB
	TypeSensor             Type = 0xAC
	TypeLog                Type = 0xAD
	TypeRcControl          Type = 0xAE
	TypeResetRTC           Type = 0xFF
)

var typeNames = map[Type]string{
	TypeHandshake1:         "Handshake1",
	TypeHandshake2:         "Handshake2",
	TypeGetFirmwareVersion: "GetFirmwareVersion",
	TypeFirmwareVersion:    "FirmwareVersion",
	TypeConfig:             "Config",
	TypeStateTransition:    "StateTransition",
	TypeShutdown1:          "Shutdown1",
	TypeShutdown2:          "Shutdown2",
	TypeHeartbeat:          "Heartbeat",
	TypeControl:            "Control",
	TypeSensor:             "Sensor",
	TypeLog:                "Log",
	TypeRcControl:          "RcControl",
	TypeResetRTC:           "ResetRTC",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%#02x)", byte(t))
}

// Packet is one of the host packets defined in this package.
type Packet interface {
	Type() Type
	// NewPacket creates an empty packet of the same type.
	NewPacket() Packet
	packet()
}

// Types maps type ids to packet prototypes.
var Types = map[Type]Packet{
	TypeHandshake1:         (*Handshake1)(nil),
	TypeHandshake2:         (*Handshake2)(nil),
	TypeGetFirmwareVersion: (*GetFirmwareVersion)(nil),
	TypeFirmwareVersion:    (*FirmwareVersion)(nil),
	TypeConfig:             (*Config)(nil),
	TypeStateTransition:    (*StateTransition)(nil),
	TypeShutdown1:          (*Shutdown1)(nil),
	TypeShutdown2:          (*Shutdown2)(nil),
	TypeHeartbeat:          (*Heartbeat)(nil),
	TypeControl:            (*Control)(nil),
	TypeSensor:             (*Sensor)(nil),
	TypeLog:                (*Log)(nil),
	TypeRcControl:          (*RcControl)(nil),
	TypeResetRTC:           (*ResetRTC)(nil),
}

// Handshake1 starts the link handshake.
type Handshake1 struct {
	Seq uint32
}

// Type implements Packet.
func (p *Handshake1) Type() Type { return TypeHandshake1 }

// NewPacket implements Packet.
func (p *Handshake1) NewPacket() Packet { return &Handshake1{} }

func (p *Handshake1) packet() {}

// Handshake2 answers Handshake1 with Seq+1.
type Handshake2 struct {
	Seq uint32
}

// Type implements Packet.
func (p *Handshake2) Type() Type { return TypeHandshake2 }

// NewPacket implements Packet.
func (p *Handshake2) NewPacket() Packet { return &Handshake2{} }

func (p *Handshake2) packet() {}

// GetFirmwareVersion queries the firmware version.
type GetFirmwareVersion struct{}

// Type implements Packet.
func (p *GetFirmwareVersion) Type() Type { return TypeGetFirmwareVersion }

// NewPacket implements Packet.
func (p *GetFirmwareVersion) NewPacket() Packet { return &GetFirmwareVersion{} }

func (p *GetFirmwareVersion) packet() {}

// FirmwareVersion reports the firmware version.
type FirmwareVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// Type implements Packet.
func (p *FirmwareVersion) Type() Type { return TypeFirmwareVersion }

// NewPacket implements Packet.
func (p *FirmwareVersion) NewPacket() Packet { return &FirmwareVersion{} }

func (p *FirmwareVersion) packet() {}

// String implements fmt.Stringer.
func (p *FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", p.Major, p.Minor, p.Patch)
}

// Config carries the host's view of link timing, all in milliseconds.
type Config struct {
	MCUHeartbeatInterval  uint32
	MCUHeartbeatTolerance uint32
	PCHeartbeatInterval   uint32
	PCHeartbeatTolerance  uint32
	ControlInterval       uint32
	ControlTolerance      uint32
}

// Type implements Packet.
func (p *Config) Type() Type { return TypeConfig }

// NewPacket implements Packet.
func (p *Config) NewPacket() Packet { return &Config{} }

func (p *Config) packet() {}

// StateTransition requests a lifecycle state.
type StateTransition struct {
	State uint8
}

// Type implements Packet.
func (p *StateTransition) Type() Type { return TypeStateTransition }

// NewPacket implements Packet.
func (p *StateTransition) NewPacket() Packet { return &StateTransition{} }

func (p *StateTransition) packet() {}

// Shutdown1 arms a shutdown.
type Shutdown1 struct {
	Seq uint32
}

// Type implements Packet.
func (p *Shutdown1) Type() Type { return TypeShutdown1 }

// NewPacket implements Packet.
func (p *Shutdown1) NewPacket() Packet { return &Shutdown1{} }

func (p *Shutdown1) packet() {}

// Shutdown2 confirms an armed shutdown.
type Shutdown2 struct {
	Seq uint32
}

// Type implements Packet.
func (p *Shutdown2) Type() Type { return TypeShutdown2 }

// NewPacket implements Packet.
func (p *Shutdown2) NewPacket() Packet { return &Shutdown2{} }

func (p *Shutdown2) packet() {}

// Heartbeat is the keep-alive sent by both sides.
type Heartbeat struct {
	Counter uint8
	State   uint8
}

// Type implements Packet.
func (p *Heartbeat) Type() Type { return TypeHeartbeat }

// NewPacket implements Packet.
func (p *Heartbeat) NewPacket() Packet { return &Heartbeat{} }

func (p *Heartbeat) packet() {}

// Control carries actuation setpoints.
type Control struct {
	// Throttle in m/s.
	Throttle float32
	// Steering in radians.
	Steering float32
	// Brake in [0, 1].
	Brake float32
}

// Type implements Packet.
func (p *Control) Type() Type { return TypeControl }

// NewPacket implements Packet.
func (p *Control) NewPacket() Packet { return &Control{} }

func (p *Control) packet() {}

// Sensor reports vehicle sensors.
type Sensor struct {
	WheelSpeedFL  float32
	WheelSpeedFR  float32
	WheelSpeedRL  float32
	WheelSpeedRR  float32
	SteeringAngle float32
	BrakePressure float32
}

// Type implements Packet.
func (p *Sensor) Type() Type { return TypeSensor }

// NewPacket implements Packet.
func (p *Sensor) NewPacket() Packet { return &Sensor{} }

func (p *Sensor) packet() {}

// Severity of a Log packet.
type Severity uint8

// Severities
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityFatal
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	}
	return fmt.Sprintf("SEVERITY(%d)", uint8(s))
}

// Log is a text message.
type Log struct {
	Severity Severity
	Text     string
}

// Type implements Packet.
func (p *Log) Type() Type { return TypeLog }

// NewPacket implements Packet.
func (p *Log) NewPacket() Packet { return &Log{} }

func (p *Log) packet() {}

// RcControl reports what the radio operator commands.
type RcControl struct {
	Throttle     float32
	Steering     float32
	Brake        float32
	AutonomyMode uint8
	IsActive     bool
}

// Type implements Packet.
func (p *RcControl) Type() Type { return TypeRcControl }

// NewPacket implements Packet.
func (p *RcControl) NewPacket() Packet { return &RcControl{} }

func (p *RcControl) packet() {}

// ResetRTC asks to leave a faulted or stopped state.
type ResetRTC struct{}

// Type implements Packet.
func (p *ResetRTC) Type() Type { return TypeResetRTC }

// NewPacket implements Packet.
func (p *ResetRTC) NewPacket() Packet { return &ResetRTC{} }

func (p *ResetRTC) packet() {}
