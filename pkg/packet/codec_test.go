package packet

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	testCases := []struct {
		pkt    Packet
		expect []byte
	}{
		{&Handshake1{Seq: 0x01020304}, []byte{0x04, 0x04, 0x03, 0x02, 0x01}},
		{&Heartbeat{Counter: 7, State: 255}, []byte{0xaa, 0x07, 0xff}},
		{&Control{Throttle: 1, Steering: -0.5, Brake: 0.25}, []byte{
			0xab,
			0x00, 0x00, 0x80, 0x3f,
			0x00, 0x00, 0x00, 0xbf,
			0x00, 0x00, 0x80, 0x3e,
		}},
		{&RcControl{Brake: 1, AutonomyMode: 2, IsActive: true}, []byte{
			0xae,
			0, 0, 0, 0,
			0, 0, 0, 0,
			0x00, 0x00, 0x80, 0x3f,
			0x02, 0x01,
		}},
		{&Log{Severity: SeverityWarning, Text: "hi"}, []byte{0xad, 0x02, 'h', 'i'}},
		{&FirmwareVersion{Minor: 3}, []byte{0x07, 0x00, 0x03, 0x00}},
		{&StateTransition{State: 3}, []byte{0xa1, 0x03}},
		{&ResetRTC{}, []byte{0xff}},
		{&GetFirmwareVersion{}, []byte{0x06}},
	}
	for _, tc := range testCases {
		t.Run(tc.pkt.Type().String(), func(t *testing.T) {
			data, err := Marshal(tc.pkt)
			require.NoError(t, err)
			require.Equal(t, tc.expect, data)
			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, tc.pkt, decoded)
		})
	}
}

func TestEveryTypeDecodes(t *testing.T) {
	for typ, proto := range Types {
		p := proto.NewPacket()
		require.Equal(t, typ, p.Type())
		data, err := Marshal(p)
		require.NoError(t, err)
		require.True(t, len(data) <= MaxPayload)
		decoded, err := Unmarshal(data)
		require.NoError(t, err, typ.String())
		require.Equal(t, p, decoded)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
		err     error
	}{
		{"empty", nil, ErrShortPayload},
		{"short control", []byte{0xab, 0, 0}, ErrShortPayload},
		{"short log", []byte{0xad}, ErrShortPayload},
		{"long heartbeat", []byte{0xaa, 1, 2, 3}, ErrLongPayload},
		{"long reset", []byte{0xff, 1}, ErrLongPayload},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Unmarshal(tc.payload)
			require.Nil(t, p)
			require.Equal(t, tc.err, err)
		})
	}

	_, err := Unmarshal([]byte{0x42, 1})
	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, Type(0x42), unknown.Type)
}

func TestLogTruncated(t *testing.T) {
	data, err := Marshal(&Log{Severity: SeverityError, Text: strings.Repeat("é", 200)})
	require.NoError(t, err)
	require.True(t, len(data) <= MaxPayload)
	p, err := Unmarshal(data)
	require.NoError(t, err)
	text := p.(*Log).Text
	require.True(t, utf8.ValidString(text))
	require.Len(t, text, 252)
}

func TestString(t *testing.T) {
	require.Equal(t, "Heartbeat{Counter:1 State:2}", String(&Heartbeat{Counter: 1, State: 2}))
	require.Equal(t, "FirmwareVersion{0.3.0}", String(&FirmwareVersion{Minor: 3}))
	require.Equal(t, "Type(0x42)", Type(0x42).String())
}
