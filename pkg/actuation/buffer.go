package actuation

import "encoding/binary"

// MaxPayload is the capacity of a bus frame payload.
const MaxPayload = 8

// Buffer is a fixed capacity payload with a write cursor.
// Writes beyond capacity are dropped and recorded in Err.
// All multi-byte values are big-endian.
type Buffer struct {
	data [MaxPayload]byte
	n    int
	err  error
}

func (b *Buffer) reserve(size int) []byte {
	if b.err != nil {
		return nil
	}
	if b.n+size > MaxPayload {
		b.err = ErrBufferFull
		return nil
	}
	p := b.data[b.n : b.n+size]
	b.n += size
	return p
}

// PutUint8 appends a byte.
func (b *Buffer) PutUint8(v uint8) *Buffer {
	if p := b.reserve(1); p != nil {
		p[0] = v
	}
	return b
}

// PutInt16 appends a big-endian int16.
func (b *Buffer) PutInt16(v int16) *Buffer {
	if p := b.reserve(2); p != nil {
		binary.BigEndian.PutUint16(p, uint16(v))
	}
	return b
}

// PutInt32 appends a big-endian int32.
func (b *Buffer) PutInt32(v int32) *Buffer {
	if p := b.reserve(4); p != nil {
		binary.BigEndian.PutUint32(p, uint32(v))
	}
	return b
}

// PutScaled16 appends v*scale truncated to int16.
func (b *Buffer) PutScaled16(v, scale float64) *Buffer {
	return b.PutInt16(int16(v * scale))
}

// PutScaled32 appends v*scale truncated to int32.
func (b *Buffer) PutScaled32(v, scale float64) *Buffer {
	return b.PutInt32(int32(v * scale))
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return b.n
}

// Bytes returns the written payload.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Err returns the first write error.
func (b *Buffer) Err() error {
	return b.err
}

// Reset clears the buffer.
func (b *Buffer) Reset() {
	*b = Buffer{}
}
