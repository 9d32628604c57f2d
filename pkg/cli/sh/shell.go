package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/hostlink"
	"github.com/robotalks/kart.go/pkg/packet"
	"github.com/robotalks/kart.go/pkg/transport"
)

// DefaultHeartbeatInterval is the host keep-alive period.
const DefaultHeartbeatInterval = 100 * time.Millisecond

// Shell provides ishell backed interactive shell playing the host PC.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// URL is connected by Run when AutoConnect is set.
	URL         string
	AutoConnect bool

	Shell *ishell.Shell
	Conn  *Conn
}

// Conn is a running host link to the vehicle.
type Conn struct {
	Ctx    context.Context
	Cancel func()
	URL    string
	Link   *hostlink.Link

	// Heartbeat enables the keep-alive.
	Heartbeat atomic.Bool
	// Watch prints periodic packets.
	Watch atomic.Bool
	// State is the vehicle state from the latest heartbeat.
	State atomic.Uint32

	waiters     map[packet.Type][]chan packet.Packet
	waitersLock sync.Mutex
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	linkURL    = os.Getenv("KART_LINK_URL")

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&linkURL, "link", linkURL, "Host link URL to connect at start.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		URL:         linkURL,

		Shell: ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// periodic packets are printed only when watching.
func periodic(t packet.Type) bool {
	switch t {
	case packet.TypeHeartbeat, packet.TypeSensor, packet.TypeRcControl:
		return true
	}
	return false
}

// Format formats a packet for display.
func (s *Shell) Format(pkt packet.Packet) string {
	if s.OutputJSON {
		out, err := json.Marshal(struct {
			Type   string        `json:"type"`
			Packet packet.Packet `json:"packet"`
		}{pkt.Type().String(), pkt})
		if err != nil {
			return err.Error()
		}
		return string(out)
	}
	return packet.String(pkt)
}

func (s *Shell) handlePacket(conn *Conn, pkt packet.Packet) {
	if hb, ok := pkt.(*packet.Heartbeat); ok {
		conn.State.Store(uint32(hb.State))
	}
	delivered := conn.deliver(pkt)
	if !delivered && (!periodic(pkt.Type()) || conn.Watch.Load()) {
		s.Shell.Println(s.Format(pkt))
	}
}

func (c *Conn) deliver(pkt packet.Packet) bool {
	c.waitersLock.Lock()
	defer c.waitersLock.Unlock()
	waiters := c.waiters[pkt.Type()]
	if len(waiters) == 0 {
		return false
	}
	waiters[0] <- pkt
	c.waiters[pkt.Type()] = waiters[1:]
	return true
}

// Request sends pkt and waits for a reply of type reply.
func (c *Conn) Request(pkt packet.Packet, reply packet.Type, timeout time.Duration) (packet.Packet, error) {
	ch := make(chan packet.Packet, 1)
	c.waitersLock.Lock()
	if c.waiters == nil {
		c.waiters = make(map[packet.Type][]chan packet.Packet)
	}
	c.waiters[reply] = append(c.waiters[reply], ch)
	c.waitersLock.Unlock()
	if err := c.Link.Send(pkt); err != nil {
		c.cancelWait(reply, ch)
		return nil, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-time.After(timeout):
		c.cancelWait(reply, ch)
		return nil, fmt.Errorf("%s: timeout waiting for %s", pkt.Type(), reply)
	}
}

func (c *Conn) cancelWait(t packet.Type, ch chan packet.Packet) {
	c.waitersLock.Lock()
	defer c.waitersLock.Unlock()
	waiters := c.waiters[t]
	for n, w := range waiters {
		if w == ch {
			c.waiters[t] = append(waiters[:n:n], waiters[n+1:]...)
			return
		}
	}
}

func (c *Conn) keepAlive(ctx context.Context) error {
	ticker := time.NewTicker(DefaultHeartbeatInterval)
	defer ticker.Stop()
	var counter uint8
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !c.Heartbeat.Load() {
				continue
			}
			counter++
			c.Link.Send(&packet.Heartbeat{Counter: counter, State: uint8(c.State.Load())})
		}
	}
}

// Connect opens the host link at url.
func (s *Shell) Connect(url string) error {
	conn := &Conn{URL: url}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	stream, err := transport.Open(conn.Ctx, url)
	if err != nil {
		conn.Cancel()
		return err
	}
	conn.Link = hostlink.NewLink(stream, 0)
	conn.Link.ReadTimeout = stream.ReadTimeout
	conn.Link.Handler = hostlink.HandlePacketFunc(func(_ context.Context, pkt packet.Packet) {
		s.handlePacket(conn, pkt)
	})
	conn.Heartbeat.Store(true)
	s.Disconnect()
	s.Conn = conn
	go func() {
		ctx, cancel := context.WithCancel(conn.Ctx)
		go conn.keepAlive(ctx)
		err := fx.RunWithContextCloser(conn.Ctx, stream, func() error {
			return conn.Link.Run(conn.Ctx)
		})
		cancel()
		if err != nil && err != context.Canceled {
			s.Shell.Printf("link %s closed: %v\n", url, err)
		}
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect disconnects the current link.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Cancel()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Send sends a packet on the current link.
func Send(c *ishell.Context, pkt packet.Packet) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	if err := s.Conn.Link.Send(pkt); err != nil {
		c.Err(err)
		return err
	}
	return nil
}

// DoRequest sends a packet, waits for the reply and prints it.
func DoRequest(c *ishell.Context, pkt packet.Packet, reply packet.Type) (packet.Packet, error) {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return nil, err
	}
	res, err := s.Conn.Request(pkt, reply, time.Second)
	if err != nil {
		c.Err(err)
		return nil, err
	}
	c.Println(s.Format(res))
	return res, nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.URL)
		}
		if err := s.Connect(s.URL); err != nil {
			log.Fatalf("connect %q failed: %v", s.URL, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects the host link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "URL",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.URL
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if url == "" {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects the host link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().WithAutoConnect(true).Run(flag.Args()...)
}
