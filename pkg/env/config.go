package env

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/robotalks/kart.go/pkg/actuation"
	"github.com/robotalks/kart.go/pkg/controller"
	fx "github.com/robotalks/kart.go/pkg/framework"
	"github.com/robotalks/kart.go/pkg/rc"
	"github.com/robotalks/kart.go/pkg/telemetry"
)

// Config is the complete vehicle configuration.
// It is read once at startup.
type Config struct {
	// VehicleID names the vehicle in telemetry topics.
	VehicleID string `yaml:"vehicle_id"`
	// LinkURL is the host link transport, e.g. serial:///dev/ttyACM0.
	LinkURL string `yaml:"link_url"`
	// BusURL is the SLCAN adapter transport.
	BusURL string `yaml:"bus_url"`
	// RadioURL is the SBUS receiver transport, optional.
	RadioURL string `yaml:"radio_url"`
	// MQTTBrokerURL is the telemetry broker, optional.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string `yaml:"mqtt_url"`

	LoopInterval   time.Duration `yaml:"loop_interval"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	TelemetryQueue int           `yaml:"telemetry_queue"`

	Journal    telemetry.JournalConfig `yaml:"journal"`
	Controller controller.Config       `yaml:"controller"`
	Actuation  actuation.Config        `yaml:"actuation"`
	RC         rc.Config               `yaml:"rc"`
}

// overrides are applied over the configuration file.
type overrides struct {
	VehicleID     string
	LinkURL       string
	BusURL        string
	RadioURL      string
	MQTTBrokerURL string
	JournalPath   string
	LoopInterval  time.Duration
}

var (
	defaultConfig = factoryConfig()
	configFile    string
	envValues     overrides
	flagValues    overrides
)

func factoryConfig() Config {
	return Config{
		LoopInterval:   fx.DefaultInterval,
		RetryInterval:  time.Second,
		TelemetryQueue: telemetry.DefaultQueueSize,
		Journal: telemetry.JournalConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Controller: controller.DefaultConfig(),
		Actuation:  actuation.DefaultConfig(),
		RC:         rc.DefaultConfig(),
	}
}

func init() {
	envValues = overrides{
		LinkURL:       os.Getenv("KART_LINK_URL"),
		BusURL:        os.Getenv("KART_BUS_URL"),
		RadioURL:      os.Getenv("KART_RADIO_URL"),
		MQTTBrokerURL: os.Getenv("KART_MQTT_URL"),
		VehicleID:     os.Getenv("KART_VEHICLE_ID"),
	}
	configFile = os.Getenv("KART_CONFIG")
	defaultConfig.VehicleID = MachineID()
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Configuration file (YAML)")
	flag.StringVar(&flagValues.VehicleID, "id", "", "Vehicle ID, machine id by default")
	flag.StringVar(&flagValues.LinkURL, "link", "", "Host link URL")
	flag.StringVar(&flagValues.BusURL, "bus", "", "SLCAN adapter URL")
	flag.StringVar(&flagValues.RadioURL, "radio", "", "SBUS receiver URL")
	flag.StringVar(&flagValues.MQTTBrokerURL, "mqtt", "", "MQTT broker URL")
	flag.StringVar(&flagValues.JournalPath, "journal", "", "Fault journal file")
	flag.DurationVar(&flagValues.LoopInterval, "loop-interval", 0, "Control loop period")
}

// Default gets the factory configuration.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config from defaults, the configuration file,
// environment and flags, in that order.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	conf.apply(envValues)
	conf.apply(flagValues)
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustNewConfig creates a Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile loads YAML over the current values.
func (c *Config) LoadFile(fn string) error {
	data, err := ioutil.ReadFile(fn)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

func (c *Config) apply(o overrides) {
	for _, s := range []struct {
		dst *string
		val string
	}{
		{&c.VehicleID, o.VehicleID},
		{&c.LinkURL, o.LinkURL},
		{&c.BusURL, o.BusURL},
		{&c.RadioURL, o.RadioURL},
		{&c.MQTTBrokerURL, o.MQTTBrokerURL},
		{&c.Journal.Path, o.JournalPath},
	} {
		if s.val != "" {
			*s.dst = s.val
		}
	}
	if o.LoopInterval > 0 {
		c.LoopInterval = o.LoopInterval
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs fx.AggregatedError
	if c.VehicleID == "" {
		errs.Add(fmt.Errorf("vehicle id is required"))
	}
	if c.LinkURL == "" {
		errs.Add(fmt.Errorf("host link URL is required"))
	}
	if c.BusURL == "" {
		errs.Add(fmt.Errorf("bus URL is required"))
	}
	if c.RadioURL == "" && c.RC.StopOnDisconnect {
		errs.Add(fmt.Errorf("stop on radio disconnect requires a radio URL"))
	}
	if c.LoopInterval <= 0 {
		errs.Add(fmt.Errorf("invalid loop interval %s", c.LoopInterval))
	}
	if c.RetryInterval <= 0 {
		errs.Add(fmt.Errorf("invalid retry interval %s", c.RetryInterval))
	}
	if c.Actuation.MinBrake > c.Actuation.MaxBrake {
		errs.Add(fmt.Errorf("brake range %d..%d", c.Actuation.MinBrake, c.Actuation.MaxBrake))
	}
	if _, err := actuation.NewSteeringTable(c.Actuation.Steering); err != nil {
		errs.Add(fmt.Errorf("steering table: %w", err))
	}
	for _, w := range c.Controller.Watchdogs {
		if w.Interval <= 0 || w.Tolerance <= 0 {
			errs.Add(fmt.Errorf("watchdog %s: invalid timing", w.Name))
		}
	}
	return errs.Aggregate()
}
