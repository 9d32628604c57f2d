package actuation

import "errors"

var (
	// ErrBufferFull indicates a write beyond the frame capacity.
	ErrBufferFull = errors.New("frame buffer full")
	// ErrBadTable indicates the steering table is not strictly increasing.
	ErrBadTable = errors.New("steering table must be strictly increasing")
)
