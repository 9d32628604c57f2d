package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// SLCAN bitrate codes.
const (
	Bitrate125K  = "S4"
	Bitrate250K  = "S5"
	Bitrate500K  = "S6"
	Bitrate1000K = "S8"
)

// MaxStandardID is the largest 11-bit CAN id.
const MaxStandardID = 0x7FF

// Errors
var (
	ErrBadSLCANFrame = errors.New("bad slcan frame")
	ErrNotConnected  = errors.New("adapter not connected")
)

// FrameHandler consumes frames read from the bus.
type FrameHandler interface {
	HandleFrame(id uint32, data []byte, now time.Time) bool
}

// SLCAN drives a serial-line CAN adapter. The port can be replaced
// with Attach while the bus is in use, e.g. after a reconnect.
type SLCAN struct {
	Bitrate string
	Handler FrameHandler

	port        io.ReadWriter
	readTimeout bool
	lock        sync.Mutex

	received, unhandled, malformed atomic.Uint64
}

// SLCANStats counts received frames.
type SLCANStats struct {
	Received  uint64
	Unhandled uint64
	Malformed uint64
}

// NewSLCAN creates a driver at 500 kbit/s. port may be nil until
// Attach is called.
func NewSLCAN(port io.ReadWriter) *SLCAN {
	return &SLCAN{port: port, Bitrate: Bitrate500K}
}

// Attach replaces the adapter port. readTimeout is set if port
// returns timeout errors from Read.
func (b *SLCAN) Attach(port io.ReadWriter, readTimeout bool) {
	b.lock.Lock()
	b.port, b.readTimeout = port, readTimeout
	b.lock.Unlock()
}

// FormatFrame encodes a transmit command. Ids above 11 bits use the
// extended form.
func FormatFrame(id uint32, data []byte) ([]byte, error) {
	if len(data) > 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadSLCANFrame, len(data))
	}
	if id > MaxStandardID {
		return []byte(fmt.Sprintf("T%08X%d%X\r", id&0x1FFFFFFF, len(data), data)), nil
	}
	return []byte(fmt.Sprintf("t%03X%d%X\r", id, len(data), data)), nil
}

// ParseFrame decodes a received frame line without the trailing CR.
func ParseFrame(line []byte) (uint32, []byte, error) {
	if len(line) == 0 {
		return 0, nil, ErrBadSLCANFrame
	}
	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
	default:
		return 0, nil, ErrBadSLCANFrame
	}
	if len(line) < 1+idLen+1 {
		return 0, nil, ErrBadSLCANFrame
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return 0, nil, ErrBadSLCANFrame
	}
	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > 8 {
		return 0, nil, ErrBadSLCANFrame
	}
	body := line[2+idLen:]
	// a receive timestamp may follow the data
	if len(body) != dlc*2 && len(body) != dlc*2+4 {
		return 0, nil, ErrBadSLCANFrame
	}
	data := make([]byte, dlc)
	if _, err := hex.Decode(data, body[:dlc*2]); err != nil {
		return 0, nil, ErrBadSLCANFrame
	}
	return uint32(id), data, nil
}

func (b *SLCAN) write(line []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.port == nil {
		return ErrNotConnected
	}
	_, err := b.port.Write(line)
	return err
}

// WriteFrame implements actuation.Bus.
func (b *SLCAN) WriteFrame(id uint32, data []byte) bool {
	line, err := FormatFrame(id, data)
	if err != nil {
		glog.Warningf("slcan: %v", err)
		return false
	}
	if err := b.write(line); err != nil {
		glog.Warningf("slcan write: %v", err)
		return false
	}
	if glog.V(3) {
		glog.Infof("slcan tx %q", line[:len(line)-1])
	}
	return true
}

// Reset implements actuation.Bus: close, set bitrate, open.
func (b *SLCAN) Reset() error {
	bitrate := b.Bitrate
	if bitrate == "" {
		bitrate = Bitrate500K
	}
	for _, cmd := range []string{"C", bitrate, "O"} {
		if err := b.write([]byte(cmd + "\r")); err != nil {
			return fmt.Errorf("slcan %s: %w", cmd, err)
		}
	}
	return nil
}

// Stats returns counters.
func (b *SLCAN) Stats() SLCANStats {
	return SLCANStats{
		Received:  b.received.Load(),
		Unhandled: b.unhandled.Load(),
		Malformed: b.malformed.Load(),
	}
}

// Run implements Runnable. It opens the adapter and passes received
// frames to Handler.
func (b *SLCAN) Run(ctx context.Context) error {
	if err := b.Reset(); err != nil {
		return err
	}
	b.lock.Lock()
	port, readTimeout := b.port, b.readTimeout
	b.lock.Unlock()
	buf := make([]byte, 64)
	var line []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := port.Read(buf)
		for _, c := range buf[:n] {
			line = b.scan(line, c)
		}
		if err != nil {
			if readTimeout && os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
}

func (b *SLCAN) scan(line []byte, c byte) []byte {
	switch c {
	case '\r':
		b.handleLine(line)
		return line[:0]
	case '\a':
		glog.Warning("slcan: adapter reported error")
		return line[:0]
	}
	if len(line) < 64 {
		line = append(line, c)
	}
	return line
}

func (b *SLCAN) handleLine(line []byte) {
	if len(line) == 0 || (line[0] != 't' && line[0] != 'T') {
		// acknowledgements of our own commands
		return
	}
	id, data, err := ParseFrame(line)
	if err != nil {
		b.malformed.Add(1)
		glog.V(2).Infof("slcan rx %q: %v", line, err)
		return
	}
	b.received.Add(1)
	if h := b.Handler; h == nil || !h.HandleFrame(id, data, time.Now()) {
		b.unhandled.Add(1)
	}
}
