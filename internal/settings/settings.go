// Package settings holds the remotely-updatable runtime configuration
// shared between the attribute handler and the publish loop.
package settings

import (
	"sync"
	"time"
)

// Defaults applied at process start, before any broker traffic.
const (
	DefaultInterval        = 5 * time.Second
	DefaultEnabled         = true
	DefaultFirmwareVersion = "1.0"
)

// Snapshot is a point-in-time view of the runtime configuration.
// It is a plain value, safe to use after the lock is released.
type Snapshot struct {
	Interval        time.Duration
	Enabled         bool
	FirmwareVersion string
}

// State holds the mutable runtime configuration behind an RWMutex.
// The attribute handler writes it, the publish loop reads it. Fields
// update independently; there is no cross-field transaction.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New creates a State carrying the defaults.
func New() *State {
	return &State{
		snap: Snapshot{
			Interval:        DefaultInterval,
			Enabled:         DefaultEnabled,
			FirmwareVersion: DefaultFirmwareVersion,
		},
	}
}

// Snapshot returns a point-in-time copy of the configuration.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Interval returns the current publish interval.
func (s *State) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Interval
}

// Enabled reports whether publishing is currently enabled.
func (s *State) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Enabled
}

// SetInterval stores a new publish interval and returns the previous
// value. Callers validate; the state stores what it is given.
func (s *State) SetInterval(d time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.snap.Interval
	s.snap.Interval = d
	return old
}

// SetEnabled stores the enabled flag and returns the previous value.
func (s *State) SetEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.snap.Enabled
	s.snap.Enabled = enabled
	return old
}

// SetFirmwareVersion stores the firmware version tag and returns the
// previous value.
func (s *State) SetFirmwareVersion(v string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.snap.FirmwareVersion
	s.snap.FirmwareVersion = v
	return old
}
