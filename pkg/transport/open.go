// Package transport opens the byte streams the vehicle talks over.
//
// Streams are addressed by URL:
//
//	serial:///dev/ttyUSB0?baud=115200&data=8&parity=none&stop=1
//	tcp://host:port
//	tcp+listen://:port       accepts a single connection
//	ws://host:port/path
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"golang.org/x/net/websocket"
)

// Stream is an opened transport.
type Stream struct {
	io.ReadWriteCloser
	// ReadTimeout indicates Read returns a timeout error periodically.
	ReadTimeout bool
	URL         string
}

// DefaultReadTimeout bounds each Read on network streams.
const DefaultReadTimeout = 100 * time.Millisecond

// Open opens a stream from a URL. ctx only bounds connecting.
func Open(ctx context.Context, rawURL string) (*Stream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	timeout := DefaultReadTimeout
	if val := u.Query().Get("timeout"); val != "" {
		if timeout, err = time.ParseDuration(val); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}
	s := &Stream{URL: rawURL}
	switch u.Scheme {
	case "serial":
		mode, err := ParseMode(u.Query())
		if err != nil {
			return nil, err
		}
		port, err := serial.Open(devicePath(u), mode)
		if err != nil {
			return nil, err
		}
		// a timed out serial read returns 0 bytes without error
		if err := port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, err
		}
		s.ReadWriteCloser = port
	case "tcp":
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		s.ReadWriteCloser, s.ReadTimeout = &deadlineConn{Conn: conn, timeout: timeout}, true
	case "tcp+listen":
		conn, err := acceptOne(ctx, u.Host)
		if err != nil {
			return nil, err
		}
		s.ReadWriteCloser, s.ReadTimeout = &deadlineConn{Conn: conn, timeout: timeout}, true
	case "ws", "wss":
		origin := u.Query().Get("origin")
		if origin == "" {
			origin = "http://localhost/"
		}
		conn, err := websocket.Dial(rawURL, "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		s.ReadWriteCloser = conn
	default:
		return nil, fmt.Errorf("unsupported transport %q", u.Scheme)
	}
	glog.Infof("transport %s opened", rawURL)
	return s, nil
}

func devicePath(u *url.URL) string {
	if u.Host != "" {
		// serial://COM3
		return u.Host + u.Path
	}
	return u.Path
}

// ParseMode parses serial settings, defaulting to 115200 8N1.
func ParseMode(q url.Values) (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	var err error
	if val := q.Get("baud"); val != "" {
		if mode.BaudRate, err = strconv.Atoi(val); err != nil || mode.BaudRate <= 0 {
			return nil, fmt.Errorf("invalid baud %q", val)
		}
	}
	if val := q.Get("data"); val != "" {
		if mode.DataBits, err = strconv.Atoi(val); err != nil || mode.DataBits < 5 || mode.DataBits > 8 {
			return nil, fmt.Errorf("invalid data bits %q", val)
		}
	}
	switch strings.ToLower(q.Get("parity")) {
	case "", "none", "n":
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid parity %q", q.Get("parity"))
	}
	switch q.Get("stop") {
	case "", "1":
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %q", q.Get("stop"))
	}
	return mode, nil
}

func acceptOne(ctx context.Context, addr string) (net.Conn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	glog.Infof("waiting for connection on %s", ln.Addr())
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	glog.Infof("accepted %s", conn.RemoteAddr())
	return conn, nil
}

type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(p)
}
