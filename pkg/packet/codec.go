package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MaxPayload is the largest encoded packet including the type byte.
const MaxPayload = 255

// MaxLogText is the longest Log text which fits a payload.
const MaxLogText = MaxPayload - 2

var (
	// ErrShortPayload indicates the payload ends before the packet does.
	ErrShortPayload = errors.New("short payload")
	// ErrLongPayload indicates trailing bytes after the packet.
	ErrLongPayload = errors.New("trailing bytes in payload")
	// ErrUnknownPacket indicates a value not defined in this package.
	ErrUnknownPacket = errors.New("unknown packet")
)

// UnknownTypeError is returned for payloads with an unknown type id.
type UnknownTypeError struct {
	Type Type
}

// Error implements error.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown packet type %#02x", byte(e.Type))
}

// Marshal encodes p into a payload. All fields are little-endian.
func Marshal(p Packet) ([]byte, error) {
	if _, ok := Types[p.Type()]; !ok {
		return nil, ErrUnknownPacket
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Type()))
	switch pkt := p.(type) {
	case *Log:
		buf.WriteByte(byte(pkt.Severity))
		buf.WriteString(truncate(pkt.Text, MaxLogText))
	case *GetFirmwareVersion, *ResetRTC:
	default:
		if err := binary.Write(&buf, binary.LittleEndian, p); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a payload.
func Unmarshal(payload []byte) (Packet, error) {
	if len(payload) == 0 {
		return nil, ErrShortPayload
	}
	t := Type(payload[0])
	proto, ok := Types[t]
	if !ok {
		return nil, &UnknownTypeError{Type: t}
	}
	p := proto.NewPacket()
	data := payload[1:]
	switch pkt := p.(type) {
	case *Log:
		if len(data) < 1 {
			return nil, ErrShortPayload
		}
		pkt.Severity, pkt.Text = Severity(data[0]), string(data[1:])
		return p, nil
	case *GetFirmwareVersion, *ResetRTC:
	default:
		r := bytes.NewReader(data)
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrShortPayload
			}
			return nil, err
		}
		data = data[len(data)-r.Len():]
	}
	if len(data) != 0 {
		return nil, ErrLongPayload
	}
	return p, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// String formats a packet for logging.
func String(p Packet) string {
	if s, ok := p.(fmt.Stringer); ok {
		return p.Type().String() + "{" + s.String() + "}"
	}
	return p.Type().String() + strings.TrimPrefix(fmt.Sprintf("%+v", p), "&")
}
