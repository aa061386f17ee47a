// Package status provides a thread-safe status tracker for the
// virtual-sensor daemon. It combines publish and update counters with
// live views of the settings and connection trackers, and is read by
// the HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/virtual-sensor/internal/conn"
	"github.com/sweeney/virtual-sensor/internal/settings"
)

// Counters accumulate over the life of the process.
type Counters struct {
	Published       int
	PublishFailures int
	PublishSkipped  int
	UpdatesApplied  int
	UpdatesRejected int
}

// Config contains daemon configuration for display.
type Config struct {
	Broker     string
	DeviceName string
	ListenAddr string
	LogFile    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a plain value, safe to use after the lock is released.
type Snapshot struct {
	Settings  settings.Snapshot
	Conn      conn.Snapshot
	Counters  Counters
	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the counters behind an RWMutex and assembles snapshots
// from the live settings and connection trackers.
type Tracker struct {
	mu        sync.RWMutex
	counters  Counters
	startTime time.Time
	cfg       Config

	settings *settings.State
	conn     *conn.Tracker
}

// NewTracker creates a Tracker with the given start time and config.
// The settings and connection trackers may be nil in tests.
func NewTracker(startTime time.Time, cfg Config, st *settings.State, ct *conn.Tracker) *Tracker {
	return &Tracker{
		startTime: startTime,
		cfg:       cfg,
		settings:  st,
		conn:      ct,
	}
}

// RecordPublish counts a successful telemetry publish.
func (t *Tracker) RecordPublish() {
	t.mu.Lock()
	t.counters.Published++
	t.mu.Unlock()
}

// RecordPublishFailure counts a telemetry publish that errored.
func (t *Tracker) RecordPublishFailure() {
	t.mu.Lock()
	t.counters.PublishFailures++
	t.mu.Unlock()
}

// RecordPublishSkipped counts a publish cycle skipped while
// disconnected.
func (t *Tracker) RecordPublishSkipped() {
	t.mu.Lock()
	t.counters.PublishSkipped++
	t.mu.Unlock()
}

// RecordUpdateApplied counts an attribute update written to settings.
func (t *Tracker) RecordUpdateApplied() {
	t.mu.Lock()
	t.counters.UpdatesApplied++
	t.mu.Unlock()
}

// RecordUpdateRejected counts an attribute update that was discarded.
func (t *Tracker) RecordUpdateRejected() {
	t.mu.Lock()
	t.counters.UpdatesRejected++
	t.mu.Unlock()
}

// Counters returns a copy of the current counters.
func (t *Tracker) Counters() Counters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counters
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	snap := Snapshot{
		Counters:  t.counters,
		StartTime: t.startTime,
		Config:    t.cfg,
	}
	t.mu.RUnlock()

	if t.settings != nil {
		snap.Settings = t.settings.Snapshot()
	}
	if t.conn != nil {
		snap.Conn = t.conn.Snapshot()
	}
	snap.Now = time.Now()
	return snap
}
