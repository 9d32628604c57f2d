package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestFormatFrame(t *testing.T) {
	testCases := []struct {
		id   uint32
		data []byte
		line string
	}{
		{0x123, []byte{0xde, 0xad}, "t1232DEAD\r"},
		{0x7FF, nil, "t7FF0\r"},
		{0x00FF0000, []byte{0x0F, 0x4A, 0, 0xC0, 0, 0, 0, 0}, "T00FF000080F4A00C000000000\r"},
		{0x0D0A, []byte{1}, "T00000D0A101\r"},
	}
	for _, tc := range testCases {
		line, err := FormatFrame(tc.id, tc.data)
		require.NoError(t, err)
		require.Equal(t, tc.line, string(line))
	}
	_, err := FormatFrame(1, make([]byte, 9))
	require.True(t, errors.Is(err, ErrBadSLCANFrame))
}

func TestParseFrame(t *testing.T) {
	testCases := []struct {
		line string
		id   uint32
		data []byte
		err  bool
	}{
		{line: "t1232DEAD", id: 0x123, data: []byte{0xde, 0xad}},
		{line: "T0000090A400001388", id: 0x90A, data: []byte{0, 0, 0x13, 0x88}},
		{line: "t1232DEAD1A2B", id: 0x123, data: []byte{0xde, 0xad}},
		{line: "t1230", id: 0x123, data: []byte{}},
		{line: "t1232DEA", err: true},
		{line: "t12", err: true},
		{line: "x1230", err: true},
		{line: "t1239", err: true},
		{line: "tXYZ0", err: true},
		{line: "", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			id, data, err := ParseFrame([]byte(tc.line))
			if tc.err {
				require.Equal(t, ErrBadSLCANFrame, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.id, id)
			require.Equal(t, tc.data, data)
		})
	}
}

type fakePort struct {
	io.Reader
	written bytes.Buffer
}

func (p *fakePort) Write(b []byte) (int, error) {
	return p.written.Write(b)
}

type recordingHandler struct {
	lock sync.Mutex
	ids  []uint32
}

func (h *recordingHandler) HandleFrame(id uint32, data []byte, now time.Time) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.ids = append(h.ids, id)
	return id == 0x90A
}

func TestSLCANRun(t *testing.T) {
	port := &fakePort{Reader: bytes.NewBufferString("\r\rt1232DEAD\rT0000090A400001388\r\abogus\rt12\r")}
	h := &recordingHandler{}
	b := NewSLCAN(port)
	b.Handler = h
	require.Equal(t, io.EOF, b.Run(context.Background()))
	require.Equal(t, "C\rS6\rO\r", port.written.String())
	require.Equal(t, []uint32{0x123, 0x90A}, h.ids)
	require.Equal(t, SLCANStats{Received: 2, Unhandled: 1, Malformed: 1}, b.Stats())
}

func TestSLCANWriteFrame(t *testing.T) {
	port := &fakePort{Reader: &bytes.Buffer{}}
	b := NewSLCAN(port)
	require.True(t, b.WriteFrame(0x123, []byte{1, 2}))
	require.False(t, b.WriteFrame(0x123, make([]byte, 9)))
	require.Equal(t, "t12320102\r", port.written.String())
}

func TestParseMode(t *testing.T) {
	testCases := []struct {
		query string
		mode  serial.Mode
		err   bool
	}{
		{query: "", mode: serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}},
		{query: "baud=100000&parity=even&stop=2", mode: serial.Mode{BaudRate: 100000, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}},
		{query: "data=7&parity=o", mode: serial.Mode{BaudRate: 115200, DataBits: 7, Parity: serial.OddParity, StopBits: serial.OneStopBit}},
		{query: "baud=fast", err: true},
		{query: "data=9", err: true},
		{query: "parity=mark", err: true},
		{query: "stop=3", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			mode, err := ParseMode(q)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.mode, *mode)
		})
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(context.Background(), "carrier-pigeon://coop")
	require.Error(t, err)
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s, err := Open(context.Background(), "tcp://"+ln.Addr().String()+"?timeout=10ms")
	require.NoError(t, err)
	defer s.Close()
	require.True(t, s.ReadTimeout)
	peer := <-accepted
	defer peer.Close()

	buf := make([]byte, 4)
	_, err = s.Read(buf)
	require.Error(t, err)
	require.True(t, isTimeout(err))

	_, err = peer.Write([]byte("ping"))
	require.NoError(t, err)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

func TestAcceptOneCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, "tcp+listen://127.0.0.1:0")
	require.Equal(t, context.Canceled, err)
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func TestSLCANNotConnected(t *testing.T) {
	b := NewSLCAN(nil)
	require.False(t, b.WriteFrame(0x123, nil))
	require.True(t, errors.Is(b.Reset(), ErrNotConnected))

	port := &fakePort{Reader: &bytes.Buffer{}}
	b.Attach(port, false)
	require.NoError(t, b.Reset())
	require.Equal(t, "C\rS6\rO\r", port.written.String())
}
