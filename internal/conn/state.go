// Package conn owns the broker connection lifecycle: the state machine,
// the reconnect backoff schedule, and the supervisor loop that drives a
// session through connect, subscribe, snapshot request, and retry.
package conn

import (
	"sync"
	"time"
)

// State is the connection lifecycle state.
type State uint8

const (
	// StateIdle means no connection has been attempted yet.
	StateIdle State = iota

	// StateConnecting means a connection attempt is in flight.
	StateConnecting

	// StateConnected means the session is established.
	StateConnected

	// StateLost means a connection attempt failed or an established
	// connection dropped; a retry is pending.
	StateLost

	// StateStopped is terminal: the supervisor has shut down.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLost:
		return "lost"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the connection state.
// It is a plain value, safe to use after the lock is released.
type Snapshot struct {
	State      State
	Retries    int    // consecutive failures since the last success
	LastError  string // most recent connect or disconnect error
	LastChange time.Time
}

// Tracker holds the connection state behind an RWMutex. The supervisor
// writes it; the publish loop and status page read it.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker in StateIdle.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: StateIdle}}
}

// Snapshot returns a point-in-time copy of the connection state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.State
}

// IsConnected reports whether the session is established.
func (t *Tracker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.State == StateConnected
}

// Retries returns the consecutive failure count.
func (t *Tracker) Retries() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.Retries
}

// SetConnecting marks a connection attempt in flight.
func (t *Tracker) SetConnecting() {
	t.mu.Lock()
	t.snap.State = StateConnecting
	t.snap.LastChange = time.Now()
	t.mu.Unlock()
}

// SetConnected marks the session established and resets the retry count.
func (t *Tracker) SetConnected() {
	t.mu.Lock()
	t.snap.State = StateConnected
	t.snap.Retries = 0
	t.snap.LastError = ""
	t.snap.LastChange = time.Now()
	t.mu.Unlock()
}

// SetLost marks a failed attempt or dropped connection, increments the
// retry count, and returns the new count.
func (t *Tracker) SetLost(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = StateLost
	t.snap.Retries++
	if err != nil {
		t.snap.LastError = err.Error()
	}
	t.snap.LastChange = time.Now()
	return t.snap.Retries
}

// SetStopped marks the terminal shutdown state.
func (t *Tracker) SetStopped() {
	t.mu.Lock()
	t.snap.State = StateStopped
	t.snap.LastChange = time.Now()
	t.mu.Unlock()
}
