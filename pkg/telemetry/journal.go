package telemetry

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/robotalks/kart.go/pkg/controller"
	"github.com/robotalks/kart.go/pkg/lifecycle"
	"github.com/robotalks/kart.go/pkg/packet"
	"github.com/robotalks/kart.go/pkg/watchdog"
)

// JournalConfig configures the rotating journal file.
type JournalConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Record is one journal line.
type Record struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Episode   string    `json:"episode,omitempty"`
	Watchdogs []string  `json:"watchdogs,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Trigger   string    `json:"trigger,omitempty"`
	Source    string    `json:"source,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Journal appends faults and transitions as JSON lines.
// It implements controller.Reporter, ignoring status and logs.
type Journal struct {
	controller.NopReporter

	w    io.WriteCloser
	enc  *json.Encoder
	lock sync.Mutex
}

// NewJournal creates a Journal rotated by lumberjack.
func NewJournal(conf JournalConfig) *Journal {
	return NewJournalWriter(&lumberjack.Logger{
		Filename:   conf.Path,
		MaxSize:    conf.MaxSizeMB,
		MaxBackups: conf.MaxBackups,
		MaxAge:     conf.MaxAgeDays,
		Compress:   conf.Compress,
	})
}

// NewJournalWriter creates a Journal on w.
func NewJournalWriter(w io.WriteCloser) *Journal {
	return &Journal{w: w, enc: json.NewEncoder(w)}
}

func (j *Journal) write(rec *Record) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if err := j.enc.Encode(rec); err != nil {
		glog.Warningf("journal: %v", err)
	}
}

// StateChanged implements controller.Reporter.
func (j *Journal) StateChanged(c lifecycle.Change) {
	j.write(&Record{
		Time:    time.Now(),
		Kind:    "transition",
		From:    c.From.String(),
		To:      c.To.String(),
		Trigger: c.Trigger.String(),
		Source:  c.Source.String(),
		Reason:  c.Reason,
	})
}

// Fault implements controller.Reporter.
func (j *Journal) Fault(ev watchdog.FaultEvent) {
	j.write(&Record{
		Time:      ev.Time,
		Kind:      "fault",
		Episode:   ev.Episode,
		Watchdogs: ev.Watchdogs,
	})
}

// Close implements io.Closer.
func (j *Journal) Close() error {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.w.Close()
}

// Reporters fans reports out to multiple reporters.
type Reporters []controller.Reporter

// StateChanged implements controller.Reporter.
func (r Reporters) StateChanged(c lifecycle.Change) {
	for _, rep := range r {
		rep.StateChanged(c)
	}
}

// Fault implements controller.Reporter.
func (r Reporters) Fault(ev watchdog.FaultEvent) {
	for _, rep := range r {
		rep.Fault(ev)
	}
}

// Status implements controller.Reporter.
func (r Reporters) Status(st controller.Status) {
	for _, rep := range r {
		rep.Status(st)
	}
}

// Log implements controller.Reporter.
func (r Reporters) Log(severity packet.Severity, text string) {
	for _, rep := range r {
		rep.Log(severity, text)
	}
}
