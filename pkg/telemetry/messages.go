package telemetry

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// TypeIDs of telemetry messages.
const (
	VehicleStatusTypeID uint32 = 0x80010001
	FaultReportTypeID   uint32 = 0x80010002
	LogEntryTypeID      uint32 = 0x80010003
	StateChangeTypeID   uint32 = 0x80010004
)

// ErrNotSerializable indicates the message has no TypeID.
var ErrNotSerializable = errors.New("not serializable message")

// UnknownTypeError indicates an unregistered TypeID.
type UnknownTypeError struct {
	TypeID uint32
}

// Error implements error.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// Message is a telemetry message.
type Message interface {
	proto.Message
	TypeID() uint32
	NewMessage() Message
}

// MessageTypes maps TypeIDs to message prototypes.
var MessageTypes = map[uint32]Message{
	VehicleStatusTypeID: (*VehicleStatus)(nil),
	FaultReportTypeID:   (*FaultReport)(nil),
	LogEntryTypeID:      (*LogEntry)(nil),
	StateChangeTypeID:   (*StateChange)(nil),
}

// Typed is the envelope carrying a message with its TypeID.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Typed) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Typed) Reset() { *m = Typed{} }

// String implements proto.Message.
func (m *Typed) String() string { return proto.CompactTextString(m) }

// Encode wraps msg in a Typed envelope and marshals it.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNotSerializable
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(&Typed{TypeId: msg.TypeID(), Message: data})
}

// Decode unmarshals an envelope and the message inside.
func Decode(data []byte) (Message, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	prototype, ok := MessageTypes[typed.TypeId]
	if !ok {
		return nil, &UnknownTypeError{TypeID: typed.TypeId}
	}
	msg := prototype.NewMessage()
	if err := proto.Unmarshal(typed.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// VehicleStatus is published periodically and on every state change.
type VehicleStatus struct {
	VehicleId     string   `protobuf:"bytes,1,opt,name=vehicle_id,proto3" json:"vehicle_id,omitempty"`
	Time          int64    `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
	State         uint32   `protobuf:"varint,3,opt,name=state,proto3" json:"state,omitempty"`
	StateName     string   `protobuf:"bytes,4,opt,name=state_name,proto3" json:"state_name,omitempty"`
	Mode          uint32   `protobuf:"varint,5,opt,name=mode,proto3" json:"mode,omitempty"`
	RcConnected   bool     `protobuf:"varint,6,opt,name=rc_connected,proto3" json:"rc_connected,omitempty"`
	RcCommanding  bool     `protobuf:"varint,7,opt,name=rc_commanding,proto3" json:"rc_commanding,omitempty"`
	Authenticated bool     `protobuf:"varint,8,opt,name=authenticated,proto3" json:"authenticated,omitempty"`
	Source        string   `protobuf:"bytes,9,opt,name=source,proto3" json:"source,omitempty"`
	Throttle      float64  `protobuf:"fixed64,10,opt,name=throttle,proto3" json:"throttle,omitempty"`
	Steering      float64  `protobuf:"fixed64,11,opt,name=steering,proto3" json:"steering,omitempty"`
	Brake         float64  `protobuf:"fixed64,12,opt,name=brake,proto3" json:"brake,omitempty"`
	Speed         float64  `protobuf:"fixed64,13,opt,name=speed,proto3" json:"speed,omitempty"`
	SteeringAngle float64  `protobuf:"fixed64,14,opt,name=steering_angle,proto3" json:"steering_angle,omitempty"`
	Lights        string   `protobuf:"bytes,15,opt,name=lights,proto3" json:"lights,omitempty"`
	Starved       []string `protobuf:"bytes,16,rep,name=starved,proto3" json:"starved,omitempty"`
}

// TypeID implements Message.
func (m *VehicleStatus) TypeID() uint32 { return VehicleStatusTypeID }

// NewMessage implements Message.
func (m *VehicleStatus) NewMessage() Message { return &VehicleStatus{} }

// ProtoMessage implements proto.Message.
func (m *VehicleStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *VehicleStatus) Reset() { *m = VehicleStatus{} }

// String implements proto.Message.
func (m *VehicleStatus) String() string { return proto.CompactTextString(m) }

// FaultReport is published for each watchdog starvation episode.
type FaultReport struct {
	VehicleId string   `protobuf:"bytes,1,opt,name=vehicle_id,proto3" json:"vehicle_id,omitempty"`
	Episode   string   `protobuf:"bytes,2,opt,name=episode,proto3" json:"episode,omitempty"`
	Time      int64    `protobuf:"varint,3,opt,name=time,proto3" json:"time,omitempty"`
	Watchdogs []string `protobuf:"bytes,4,rep,name=watchdogs,proto3" json:"watchdogs,omitempty"`
}

// TypeID implements Message.
func (m *FaultReport) TypeID() uint32 { return FaultReportTypeID }

// NewMessage implements Message.
func (m *FaultReport) NewMessage() Message { return &FaultReport{} }

// ProtoMessage implements proto.Message.
func (m *FaultReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FaultReport) Reset() { *m = FaultReport{} }

// String implements proto.Message.
func (m *FaultReport) String() string { return proto.CompactTextString(m) }

// LogEntry mirrors a Log packet sent to the host.
type LogEntry struct {
	VehicleId string `protobuf:"bytes,1,opt,name=vehicle_id,proto3" json:"vehicle_id,omitempty"`
	Time      int64  `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
	Severity  uint32 `protobuf:"varint,3,opt,name=severity,proto3" json:"severity,omitempty"`
	Text      string `protobuf:"bytes,4,opt,name=text,proto3" json:"text,omitempty"`
}

// TypeID implements Message.
func (m *LogEntry) TypeID() uint32 { return LogEntryTypeID }

// NewMessage implements Message.
func (m *LogEntry) NewMessage() Message { return &LogEntry{} }

// ProtoMessage implements proto.Message.
func (m *LogEntry) ProtoMessage() {}

// Reset implements proto.Message.
func (m *LogEntry) Reset() { *m = LogEntry{} }

// String implements proto.Message.
func (m *LogEntry) String() string { return proto.CompactTextString(m) }

// StateChange is published on every lifecycle transition.
type StateChange struct {
	VehicleId string `protobuf:"bytes,1,opt,name=vehicle_id,proto3" json:"vehicle_id,omitempty"`
	Time      int64  `protobuf:"varint,2,opt,name=time,proto3" json:"time,omitempty"`
	From      string `protobuf:"bytes,3,opt,name=from,proto3" json:"from,omitempty"`
	To        string `protobuf:"bytes,4,opt,name=to,proto3" json:"to,omitempty"`
	Trigger   string `protobuf:"bytes,5,opt,name=trigger,proto3" json:"trigger,omitempty"`
	Source    string `protobuf:"bytes,6,opt,name=source,proto3" json:"source,omitempty"`
	Reason    string `protobuf:"bytes,7,opt,name=reason,proto3" json:"reason,omitempty"`
}

// TypeID implements Message.
func (m *StateChange) TypeID() uint32 { return StateChangeTypeID }

// NewMessage implements Message.
func (m *StateChange) NewMessage() Message { return &StateChange{} }

// ProtoMessage implements proto.Message.
func (m *StateChange) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StateChange) Reset() { *m = StateChange{} }

// String implements proto.Message.
func (m *StateChange) String() string { return proto.CompactTextString(m) }
