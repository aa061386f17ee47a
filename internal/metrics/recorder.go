// Package metrics provides observability hooks for the agent with
// abstraction for testing. The Prometheus implementation backs the
// /metrics endpoint; the no-op implementation is the default when
// metrics are not wired.
package metrics

import "time"

// ResultLabel enumerates attribute update outcomes for counters.
type ResultLabel string

const (
	ResultApplied  ResultLabel = "applied"
	ResultRejected ResultLabel = "rejected"
)

// Recorder defines the observability hooks. All methods must be safe
// for concurrent use and for nil receivers, allowing optional injection.
type Recorder interface {
	ConnectAttempt()
	ConnectSuccess()
	ConnectFailure()
	ConnectionLost()
	SetConnectionState(state string)
	TelemetryPublished()
	TelemetryFailure()
	TelemetrySkipped()
	AttributeUpdate(field string, result ResultLabel)
	SetPublishInterval(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ConnectAttempt()                     {}
func (NoopRecorder) ConnectSuccess()                     {}
func (NoopRecorder) ConnectFailure()                     {}
func (NoopRecorder) ConnectionLost()                     {}
func (NoopRecorder) SetConnectionState(string)           {}
func (NoopRecorder) TelemetryPublished()                 {}
func (NoopRecorder) TelemetryFailure()                   {}
func (NoopRecorder) TelemetrySkipped()                   {}
func (NoopRecorder) AttributeUpdate(string, ResultLabel) {}
func (NoopRecorder) SetPublishInterval(time.Duration)    {}

var _ Recorder = NoopRecorder{}
