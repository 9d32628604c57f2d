package controller

import (
	"fmt"
	"time"

	"github.com/robotalks/kart.go/pkg/lifecycle"
)

// Watchdog names
const (
	WatchdogHostHeartbeat = "host_heartbeat"
	WatchdogControl       = "control_cmd"
	WatchdogSensor        = "sensor_poll"
	WatchdogActuation     = "actuation"
	WatchdogRC            = "rc_heartbeat"
	WatchdogCommLink      = "comm_link"
	WatchdogController    = "controller"
)

// WatchdogConfig configures one watchdog.
type WatchdogConfig struct {
	Name      string        `yaml:"name"`
	Interval  time.Duration `yaml:"interval"`
	Tolerance time.Duration `yaml:"tolerance"`
}

// Version is the firmware version reported to the host.
type Version struct {
	Major uint8 `yaml:"major"`
	Minor uint8 `yaml:"minor"`
	Patch uint8 `yaml:"patch"`
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Config defines the controller timing.
type Config struct {
	Watchdogs []WatchdogConfig `yaml:"watchdogs"`
	// WakeupInterval bounds the watchdog evaluation period.
	WakeupInterval    time.Duration `yaml:"wakeup_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SensorInterval    time.Duration `yaml:"sensor_interval"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	FlashPeriod       time.Duration `yaml:"flash_period"`
	// AutoInitialize initializes the vehicle whenever it is Uninitialized.
	AutoInitialize bool    `yaml:"auto_initialize"`
	Firmware       Version `yaml:"firmware"`
}

// DefaultConfig returns the factory timing.
func DefaultConfig() Config {
	return Config{
		Watchdogs: []WatchdogConfig{
			{WatchdogHostHeartbeat, time.Second, 2 * time.Second},
			{WatchdogControl, 10 * time.Millisecond, 200 * time.Millisecond},
			{WatchdogSensor, 50 * time.Millisecond, 3 * time.Second},
			{WatchdogActuation, 10 * time.Millisecond, 2 * time.Second},
			{WatchdogRC, 100 * time.Millisecond, 500 * time.Millisecond},
			{WatchdogCommLink, time.Second, 3 * time.Second},
			{WatchdogController, 10 * time.Millisecond, 3 * time.Second},
		},
		WakeupInterval:    2 * time.Millisecond,
		HeartbeatInterval: 100 * time.Millisecond,
		SensorInterval:    50 * time.Millisecond,
		StatusInterval:    time.Second,
		FlashPeriod:       time.Second,
		AutoInitialize:    true,
		Firmware:          Version{Major: 0, Minor: 3, Patch: 0},
	}
}

// Watchdog finds the named watchdog configuration.
func (c *Config) Watchdog(name string) (WatchdogConfig, bool) {
	for _, w := range c.Watchdogs {
		if w.Name == name {
			return w, true
		}
	}
	return WatchdogConfig{}, false
}

var alwaysArmed = []string{
	WatchdogSensor,
	WatchdogActuation,
	WatchdogCommLink,
	WatchdogController,
}

// ArmedIn lists the watchdogs armed in state.
func ArmedIn(state lifecycle.State, stopOnDisconnect bool) []string {
	switch state {
	case lifecycle.Uninitialized, lifecycle.Initializing, lifecycle.ShuttingDown:
		return nil
	}
	names := append([]string{WatchdogHostHeartbeat}, alwaysArmed...)
	if state == lifecycle.Engaged {
		names = append(names, WatchdogControl)
		if stopOnDisconnect {
			names = append(names, WatchdogRC)
		}
	}
	return names
}
