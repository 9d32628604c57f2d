package env

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/kart.go/pkg/actuation"
	"github.com/robotalks/kart.go/pkg/controller"
	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/hostlink"
	"github.com/robotalks/kart.go/pkg/rc"
	"github.com/robotalks/kart.go/pkg/sbus"
	"github.com/robotalks/kart.go/pkg/telemetry"
	"github.com/robotalks/kart.go/pkg/transport"
)

// OpenFunc opens a transport by URL.
type OpenFunc func(ctx context.Context, url string) (*transport.Stream, error)

// Env is the assembled vehicle.
type Env struct {
	Config     *Config
	Controller *controller.Controller
	Encoder    *actuation.Encoder
	Arbiter    *rc.Arbiter
	Link       *hostlink.Link
	Bus        *transport.SLCAN
	Radio      *sbus.Decoder
	Queue      *telemetry.Queue
	Publisher  *telemetry.Publisher
	Journal    *telemetry.Journal
	// Open opens transports, transport.Open by default.
	Open OpenFunc
}

// NewEnv assembles the vehicle from config. Transports are opened
// when the loop runs.
func (c *Config) NewEnv() (*Env, error) {
	e := &Env{
		Config:  c,
		Arbiter: rc.NewArbiter(c.RC),
		Bus:     transport.NewSLCAN(nil),
		Link:    hostlink.NewLink(nil, hostlink.DefaultQueueSize),
		Open:    transport.Open,
	}
	e.Encoder = actuation.NewEncoder(c.Actuation, e.Bus)
	e.Bus.Handler = e.Encoder
	ctl, err := controller.New(c.Controller, e.Encoder, e.Arbiter, e.Link)
	if err != nil {
		return nil, err
	}
	e.Controller = ctl
	e.Link.Handler = ctl
	e.Link.Activity = ctl.LinkActivity
	e.Radio = &sbus.Decoder{Handler: ctl}

	var reporters telemetry.Reporters
	if c.MQTTBrokerURL != "" {
		if e.Queue, err = telemetry.NewQueueFromURL(c.MQTTBrokerURL); err != nil {
			return nil, fmt.Errorf("create MQTT queue error: %w", err)
		}
		e.Publisher = telemetry.NewPublisher(e.Queue, c.VehicleID, c.TelemetryQueue)
		reporters = append(reporters, e.Publisher)
	}
	if c.Journal.Path != "" {
		e.Journal = telemetry.NewJournal(c.Journal)
		reporters = append(reporters, e.Journal)
	}
	switch len(reporters) {
	case 0:
	case 1:
		ctl.Reporter = reporters[0]
	default:
		ctl.Reporter = reporters
	}
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// AddToLoop adds controllers/runners to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Interval = e.Config.LoopInterval
	loop.Add(e.Controller)
	loop.AddRunnable(
		fx.NamedRun("watchdog", e.Controller.Registry),
		fx.Retry("link", e.Config.RetryInterval, fx.RunnableFunc(e.runLink)),
		fx.Retry("bus", e.Config.RetryInterval, fx.RunnableFunc(e.runBus)),
	)
	if e.Config.RadioURL != "" {
		loop.AddRunnable(fx.Retry("radio", e.Config.RetryInterval, fx.RunnableFunc(e.runRadio)))
	}
	if e.Publisher != nil {
		loop.AddRunnable(fx.Retry("telemetry", e.Config.RetryInterval, fx.RunnableFunc(e.runTelemetry)))
	}
}

// Close releases resources not owned by runners.
func (e *Env) Close() error {
	if e.Journal != nil {
		return e.Journal.Close()
	}
	return nil
}

func (e *Env) runLink(ctx context.Context) error {
	s, err := e.Open(ctx, e.Config.LinkURL)
	if err != nil {
		return err
	}
	e.Link.ReadWriter, e.Link.ReadTimeout = s, s.ReadTimeout
	return fx.RunWithContextCloser(ctx, s, func() error {
		return e.Link.Run(ctx)
	})
}

func (e *Env) runBus(ctx context.Context) error {
	s, err := e.Open(ctx, e.Config.BusURL)
	if err != nil {
		return err
	}
	e.Bus.Attach(s, s.ReadTimeout)
	defer e.Bus.Attach(nil, false)
	return fx.RunWithContextCloser(ctx, s, func() error {
		return e.Bus.Run(ctx)
	})
}

func (e *Env) runRadio(ctx context.Context) error {
	s, err := e.Open(ctx, e.Config.RadioURL)
	if err != nil {
		return err
	}
	return fx.RunWithContextCloser(ctx, s, func() error {
		return pump(ctx, s, e.Radio)
	})
}

// pump copies s into w until ctx is done, ignoring read timeouts.
func pump(ctx context.Context, s *transport.Stream, w io.Writer) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := s.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
		}
		if err != nil {
			if s.ReadTimeout && os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
}

func (e *Env) runTelemetry(ctx context.Context) error {
	token := e.Queue.Connect()
	for !token.WaitTimeout(time.Second) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect: %w", err)
	}
	glog.Infof("telemetry publishing to %s", e.Config.MQTTBrokerURL)
	defer e.Queue.Close()
	return e.Publisher.Run(ctx)
}
