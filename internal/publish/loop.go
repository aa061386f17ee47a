// Package publish runs the telemetry loop: sleep out the configured
// interval, read a sample, publish it. The loop owns the only sensor
// reads in the process.
package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/virtual-sensor/internal/conn"
	"github.com/sweeney/virtual-sensor/internal/metrics"
	"github.com/sweeney/virtual-sensor/internal/mqtt"
	"github.com/sweeney/virtual-sensor/internal/reading"
	"github.com/sweeney/virtual-sensor/internal/settings"
	"github.com/sweeney/virtual-sensor/internal/status"
)

// DefaultDisabledPoll bounds the re-enable latency while publishing is
// switched off.
const DefaultDisabledPoll = 1 * time.Second

// LoopConfig wires a Loop.
type LoopConfig struct {
	State   *settings.State
	Conn    *conn.Tracker
	Session mqtt.Session
	Source  reading.Source
	Status  *status.Tracker

	// DisabledPoll is how often the loop re-checks the enabled flag
	// while publishing is off.
	DisabledPoll time.Duration

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Loop periodically publishes telemetry. It reads the settings fresh
// every cycle, so attribute updates take effect on the next cycle
// without a restart.
type Loop struct {
	state        *settings.State
	conn         *conn.Tracker
	session      mqtt.Session
	source       reading.Source
	status       *status.Tracker
	disabledPoll time.Duration
	metrics      metrics.Recorder
	log          *slog.Logger
}

// NewLoop creates a Loop. State, Conn, Session, Source, and Status are
// required.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.DisabledPoll <= 0 {
		cfg.DisabledPoll = DefaultDisabledPoll
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		state:        cfg.State,
		conn:         cfg.Conn,
		session:      cfg.Session,
		source:       cfg.Source,
		status:       cfg.Status,
		disabledPoll: cfg.DisabledPoll,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
	}
}

// Run publishes telemetry until ctx is cancelled. It blocks.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("publish loop started", "interval", l.state.Interval())
	defer l.log.Info("publish loop stopped")

	l.metrics.SetPublishInterval(l.state.Interval())

	wasDisabled := false
	for {
		snap := l.state.Snapshot()

		if !snap.Enabled {
			wasDisabled = true
			if !sleepCtx(ctx, l.disabledPoll) {
				return
			}
			continue
		}

		if wasDisabled {
			// Coming out of a disabled stretch publishes straight
			// away instead of waiting out a full interval.
			wasDisabled = false
			l.publishOnce()
			continue
		}

		if !sleepCtx(ctx, snap.Interval) {
			return
		}
		l.publishOnce()
	}
}

// publishOnce re-reads the state after the sleep: a disable or
// disconnect that landed during the wait takes effect now, not one
// cycle later. A skipped or failed sample is dropped, never queued.
func (l *Loop) publishOnce() {
	if !l.state.Enabled() {
		return
	}

	if !l.conn.IsConnected() {
		l.log.Warn("skipping publish while disconnected")
		l.status.RecordPublishSkipped()
		l.metrics.TelemetrySkipped()
		return
	}

	sample := l.source.Read()
	payload, err := mqtt.FormatTelemetryPayload(sample)
	if err != nil {
		l.log.Error("encoding telemetry failed", "error", err)
		l.status.RecordPublishFailure()
		l.metrics.TelemetryFailure()
		return
	}

	if err := l.session.Publish(mqtt.TopicTelemetry, payload); err != nil {
		l.log.Error("publishing telemetry failed", "error", err)
		l.status.RecordPublishFailure()
		l.metrics.TelemetryFailure()
		return
	}

	l.log.Info("published telemetry",
		"temperature", sample.Temperature,
		"humidity", sample.Humidity)
	l.status.RecordPublish()
	l.metrics.TelemetryPublished()
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
