package sbus

import (
	"bytes"
	"sync"
)

// FrameHandler is called for every frame accepted by Decoder.
type FrameHandler interface {
	HandleFrame(Frame)
}

// HandleFrameFunc is the func form of FrameHandler.
type HandleFrameFunc func(Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(frame Frame) {
	f(frame)
}

// Decoder scans a byte stream for radio frames.
// Malformed input never overwrites the last decoded frame.
type Decoder struct {
	Handler FrameHandler

	buf   [FrameSize]byte
	n     int
	frame Frame
	fresh bool
	count uint64
	lock  sync.Mutex
}

// Write implements io.Writer so a receiver port can be copied into
// the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.FeedBytes(p)
	return len(p), nil
}

// FeedBytes consumes bytes and returns the number of frames completed.
func (d *Decoder) FeedBytes(p []byte) (frames int) {
	for _, b := range p {
		if d.n == 0 && b != StartByte {
			continue
		}
		d.buf[d.n] = b
		d.n++
		if d.n < FrameSize {
			continue
		}
		if !IsEndByte(d.buf[FrameSize-1]) {
			d.resync()
			continue
		}
		d.n = 0
		if d.DecodeFrame(d.buf[:]) {
			frames++
		}
	}
	return
}

// resync drops the current start marker and continues from the next
// buffered one.
func (d *Decoder) resync() {
	i := bytes.IndexByte(d.buf[1:d.n], StartByte)
	if i < 0 {
		d.n = 0
		return
	}
	d.n = copy(d.buf[:], d.buf[1+i:d.n])
}

// DecodeFrame decodes a complete raw frame. It returns false and keeps
// the previous frame if raw is short or doesn't start with StartByte.
func (d *Decoder) DecodeFrame(raw []byte) bool {
	if len(raw) != FrameSize || raw[0] != StartByte {
		return false
	}
	var frame Frame
	Unpack((*[FrameSize]byte)(raw), &frame)
	d.lock.Lock()
	d.frame, d.fresh = frame, true
	d.count++
	handler := d.Handler
	d.lock.Unlock()
	if handler != nil {
		handler.HandleFrame(frame)
	}
	return true
}

// Ready indicates a frame arrived since the last Decode.
func (d *Decoder) Ready() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.fresh
}

// Decode returns the last frame and whether it is new since
// the previous call.
func (d *Decoder) Decode() (Frame, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	fresh := d.fresh
	d.fresh = false
	return d.frame, fresh
}

// Count returns the number of frames decoded.
func (d *Decoder) Count() uint64 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.count
}
