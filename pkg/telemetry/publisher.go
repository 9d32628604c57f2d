package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/controller"
	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/packet"
	"github.com/robotalks/kart.go/pkg/watchdog"
)

// DefaultQueueSize is the default publish queue capacity.
const DefaultQueueSize = 64

// Topics relative to the vehicle.
const (
	TopicStatus = "status"
	TopicFault  = "fault"
	TopicLog    = "log"
	TopicState  = "state"
)

// Pub publishes a payload, implemented by Queue.
type Pub interface {
	Pub(topic string, payload []byte) paho.Token
}

type outgoing struct {
	topic string
	msg   Message
}

// Publisher implements controller.Reporter by publishing telemetry
// messages asynchronously. A full queue drops messages.
type Publisher struct {
	Pub       Pub
	VehicleID string

	queue   chan outgoing
	dropped atomic.Uint64
}

// NewPublisher creates a Publisher.
func NewPublisher(pub Pub, vehicleID string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		Pub:       pub,
		VehicleID: vehicleID,
		queue:     make(chan outgoing, queueSize),
	}
}

// Dropped counts messages dropped because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) post(topic string, msg Message) {
	select {
	case p.queue <- outgoing{topic: p.VehicleID + "/" + topic, msg: msg}:
	default:
		if p.dropped.Add(1)%100 == 1 {
			glog.Warningf("telemetry queue full, dropped %d", p.dropped.Load())
		}
	}
}

// StateChanged implements controller.Reporter.
func (p *Publisher) StateChanged(c lifecycle.Change) {
	p.post(TopicState, &StateChange{
		VehicleId: p.VehicleID,
		Time:      time.Now().UnixNano(),
		From:      c.From.String(),
		To:        c.To.String(),
		Trigger:   c.Trigger.String(),
		Source:    c.Source.String(),
		Reason:    c.Reason,
	})
}

// Fault implements controller.Reporter.
func (p *Publisher) Fault(ev watchdog.FaultEvent) {
	p.post(TopicFault, &FaultReport{
		VehicleId: p.VehicleID,
		Episode:   ev.Episode,
		Time:      ev.Time.UnixNano(),
		Watchdogs: ev.Watchdogs,
	})
}

// Status implements controller.Reporter.
func (p *Publisher) Status(st controller.Status) {
	p.post(TopicStatus, StatusMessage(p.VehicleID, st))
}

// Log implements controller.Reporter.
func (p *Publisher) Log(severity packet.Severity, text string) {
	p.post(TopicLog, &LogEntry{
		VehicleId: p.VehicleID,
		Time:      time.Now().UnixNano(),
		Severity:  uint32(severity),
		Text:      text,
	})
}

// StatusMessage converts a controller status.
func StatusMessage(vehicleID string, st controller.Status) *VehicleStatus {
	return &VehicleStatus{
		VehicleId:     vehicleID,
		Time:          st.Time.UnixNano(),
		State:         uint32(st.State),
		StateName:     st.State.String(),
		Mode:          uint32(st.Mode),
		RcConnected:   st.RCConnected,
		RcCommanding:  st.RCCommanding,
		Authenticated: st.Authenticated,
		Source:        st.Command.Source.String(),
		Throttle:      st.Command.Throttle,
		Steering:      st.Command.Steering,
		Brake:         st.Command.Brake,
		Speed:         st.Feedback.Speed,
		SteeringAngle: st.Feedback.SteeringAngle,
		Lights:        st.Lights.String(),
		Starved:       st.Starved,
	}
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-p.queue:
			payload, err := Encode(out.msg)
			if err != nil {
				glog.Errorf("encode %s: %v", out.topic, err)
				continue
			}
			// completion is not awaited; paho queues while reconnecting
			p.Pub.Pub(out.topic, payload)
		}
	}
}
