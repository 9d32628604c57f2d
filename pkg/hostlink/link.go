package hostlink

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/packet"
)

// DefaultQueueSize is the default capacity of the send queue.
const DefaultQueueSize = 10

// PacketHandler is called when a packet is received.
type PacketHandler interface {
	HandlePacket(context.Context, packet.Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, packet.Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt packet.Packet) {
	f(ctx, pkt)
}

// Stats counts Link activity.
type Stats struct {
	Received  uint64
	Dropped   uint64
	Malformed uint64
	Sent      uint64
	Overflow  uint64
}

// Link sends and receives packets over a byte stream.
type Link struct {
	ReadWriter io.ReadWriter
	Handler    PacketHandler
	// Activity is called after every read, including reads that time out.
	Activity func()
	// ReadTimeout is set if ReadWriter supports timeout with Read.
	ReadTimeout bool

	sendCh chan []byte
	parser Parser

	received, dropped, malformed, sent, overflow atomic.Uint64
}

// NewLink creates a Link with a send queue of queueSize frames.
func NewLink(rw io.ReadWriter, queueSize int) *Link {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Link{
		ReadWriter: rw,
		sendCh:     make(chan []byte, queueSize),
	}
}

// Send queues a packet. It never blocks: when the queue is full the
// packet is dropped and ErrQueueFull is returned.
func (l *Link) Send(pkt packet.Packet) error {
	payload, err := packet.Marshal(pkt)
	if err != nil {
		return err
	}
	frame := Frame{Payload: payload}
	b, err := frame.Bytes()
	if err != nil {
		return err
	}
	select {
	case l.sendCh <- b:
		if glog.V(2) {
			glog.Infof("link queued %s", packet.String(pkt))
		}
		return nil
	default:
		l.overflow.Add(1)
		return ErrQueueFull
	}
}

// Stats returns counters.
func (l *Link) Stats() Stats {
	return Stats{
		Received:  l.received.Load(),
		Dropped:   l.dropped.Load(),
		Malformed: l.malformed.Load(),
		Sent:      l.sent.Load(),
		Overflow:  l.overflow.Load(),
	}
}

// Run implements Runnable.
func (l *Link) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	go func() { errCh <- l.writeLoop(ctx) }()
	go func() { errCh <- l.readLoop(ctx) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (l *Link) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-l.sendCh:
			if _, err := l.ReadWriter.Write(b); err != nil {
				glog.Errorf("link write error: %v", err)
				return err
			}
			l.sent.Add(1)
		}
	}
}

func (l *Link) readLoop(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := l.ReadWriter.Read(buf)
		if fn := l.Activity; fn != nil {
			fn()
		}
		for _, b := range buf[:n] {
			l.parseByte(ctx, b)
		}
		if err != nil {
			if l.ReadTimeout && os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
}

func (l *Link) parseByte(ctx context.Context, b byte) {
	pr := l.parser.Parse(b)
	if pr.Err != nil {
		l.dropped.Add(1)
		glog.Warningf("link frame dropped: %v", pr.Err)
		return
	}
	if pr.Payload == nil {
		return
	}
	pkt, err := packet.Unmarshal(pr.Payload)
	if err != nil {
		l.malformed.Add(1)
		glog.Warningf("link packet dropped: %v", err)
		return
	}
	l.received.Add(1)
	if glog.V(2) {
		glog.Infof("link received %s", packet.String(pkt))
	}
	if h := l.Handler; h != nil {
		h.HandlePacket(ctx, pkt)
	}
}
