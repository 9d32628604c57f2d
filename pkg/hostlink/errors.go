package hostlink

import "errors"

var (
	// ErrBadFrame indicates a zero length or missing end byte.
	ErrBadFrame = errors.New("bad frame")
	// ErrBadChecksum indicates the checksum doesn't match the payload.
	ErrBadChecksum = errors.New("bad checksum")
	// ErrPayloadTooLong indicates the payload doesn't fit a frame.
	ErrPayloadTooLong = errors.New("payload too long")
	// ErrQueueFull indicates the send queue is full and the packet is dropped.
	ErrQueueFull = errors.New("send queue full")
)
