package hostlink

import "io"

// Frame markers
const (
	StartByte byte = 0x02
	EndByte   byte = 0x03
)

// MaxPayload is the largest payload of a frame.
const MaxPayload = 255

// Overhead is the number of framing bytes around a payload.
const Overhead = 5

// Frame is a payload to be framed.
type Frame struct {
	Payload []byte
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() ([]byte, error) {
	l := len(f.Payload)
	if l == 0 {
		return nil, ErrBadFrame
	}
	if l > MaxPayload {
		return nil, ErrPayloadTooLong
	}
	b := make([]byte, l+Overhead)
	b[0], b[1] = StartByte, byte(l)
	copy(b[2:], f.Payload)
	crc := CRC16(f.Payload)
	b[l+2], b[l+3], b[l+4] = byte(crc), byte(crc>>8), EndByte
	return b, nil
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}
