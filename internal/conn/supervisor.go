package conn

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/virtual-sensor/internal/metrics"
	"github.com/sweeney/virtual-sensor/internal/mqtt"
)

const defaultQuiesce = 1 * time.Second

// MessageHandler consumes inbound messages drained by the supervisor.
// Calls arrive from the supervisor goroutine only.
type MessageHandler interface {
	HandleMessage(topic string, payload []byte)
}

// SupervisorConfig wires a Supervisor.
type SupervisorConfig struct {
	Session mqtt.Session
	Tracker *Tracker
	Backoff *Backoff
	Handler MessageHandler

	// SubscribeTopics are subscribed in order after every successful
	// connect, before the snapshot request goes out.
	SubscribeTopics []string

	// RequestTopic and RequestPayload form the one-shot snapshot
	// request sent once the subscriptions are up. An empty topic
	// disables the request.
	RequestTopic   string
	RequestPayload []byte

	// DisconnectQuiesce bounds the graceful disconnect on shutdown.
	DisconnectQuiesce time.Duration

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Supervisor drives the session through connect, subscribe, snapshot
// request, event drain, and backoff retry. It retries forever; only
// context cancellation stops it.
type Supervisor struct {
	session    mqtt.Session
	tracker    *Tracker
	backoff    *Backoff
	handler    MessageHandler
	topics     []string
	reqTopic   string
	reqPayload []byte
	quiesce    time.Duration
	metrics    metrics.Recorder
	log        *slog.Logger
}

// NewSupervisor creates a Supervisor. Session and Tracker are required;
// everything else has a usable default.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Backoff == nil {
		cfg.Backoff = NewBackoff()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DisconnectQuiesce <= 0 {
		cfg.DisconnectQuiesce = defaultQuiesce
	}
	return &Supervisor{
		session:    cfg.Session,
		tracker:    cfg.Tracker,
		backoff:    cfg.Backoff,
		handler:    cfg.Handler,
		topics:     cfg.SubscribeTopics,
		reqTopic:   cfg.RequestTopic,
		reqPayload: cfg.RequestPayload,
		quiesce:    cfg.DisconnectQuiesce,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
}

// Run drives the connection until ctx is cancelled. It blocks.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return
		}

		if err := s.establish(); err != nil {
			if !s.waitRetry(ctx) {
				s.shutdown()
				return
			}
			continue
		}

		if lost := s.drain(ctx); !lost {
			s.shutdown()
			return
		}

		if !s.waitRetry(ctx) {
			s.shutdown()
			return
		}
	}
}

// establish performs one connect attempt and brings the session to a
// well-formed state: connected, subscribed, snapshot requested.
func (s *Supervisor) establish() error {
	s.flushEvents()

	s.tracker.SetConnecting()
	s.metrics.SetConnectionState(StateConnecting.String())
	s.metrics.ConnectAttempt()
	s.log.Info("connecting to broker")

	if err := s.session.Connect(); err != nil {
		n := s.tracker.SetLost(err)
		s.metrics.ConnectFailure()
		s.metrics.SetConnectionState(StateLost.String())
		s.log.Error("connect failed", "error", err, "retries", n)
		return err
	}

	s.tracker.SetConnected()
	s.metrics.ConnectSuccess()
	s.metrics.SetConnectionState(StateConnected.String())
	s.backoff.Reset()
	s.log.Info("connected to broker")

	// Subscriptions must be in place before the snapshot request goes
	// out, or the response could arrive on an unsubscribed topic and
	// be dropped.
	for _, topic := range s.topics {
		if err := s.session.Subscribe(topic); err != nil {
			return s.teardown(err)
		}
		s.log.Info("subscribed", "topic", topic)
	}

	if s.reqTopic != "" {
		if err := s.session.Publish(s.reqTopic, s.reqPayload); err != nil {
			return s.teardown(err)
		}
		s.log.Info("requested attribute snapshot", "topic", s.reqTopic)
	}

	return nil
}

// teardown abandons a half-established session so the retry path can
// rebuild it from scratch.
func (s *Supervisor) teardown(err error) error {
	s.session.Disconnect(s.quiesce)
	n := s.tracker.SetLost(err)
	s.metrics.ConnectFailure()
	s.metrics.SetConnectionState(StateLost.String())
	s.log.Error("session bring-up failed", "error", err, "retries", n)
	return err
}

// flushEvents empties the event channel before a connect attempt. A
// message racing the loss callback can land behind the lost
// notification; it belongs to the dead connection, and the snapshot
// request on the fresh one supersedes it.
func (s *Supervisor) flushEvents() {
	for {
		select {
		case ev := <-s.session.Events():
			if m, ok := ev.(mqtt.Message); ok {
				s.log.Debug("dropping message from previous connection", "topic", m.Topic)
			}
		default:
			return
		}
	}
}

// drain dispatches session events until the connection drops or ctx is
// cancelled. Returns true if the connection was lost and the supervisor
// should retry.
func (s *Supervisor) drain(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev := <-s.session.Events():
			switch e := ev.(type) {
			case mqtt.Message:
				if s.handler != nil {
					s.handler.HandleMessage(e.Topic, e.Payload)
				}
			case mqtt.ConnectionLost:
				n := s.tracker.SetLost(e.Err)
				s.metrics.ConnectionLost()
				s.metrics.SetConnectionState(StateLost.String())
				s.log.Warn("connection lost", "error", e.Err, "retries", n)
				return true
			}
		}
	}
}

// waitRetry sleeps out the backoff delay. Returns false if ctx was
// cancelled during the wait.
func (s *Supervisor) waitRetry(ctx context.Context) bool {
	delay := s.backoff.Next()
	s.log.Info("reconnect scheduled", "delay", delay, "retries", s.tracker.Retries())
	return sleepCtx(ctx, delay)
}

// shutdown transitions to the terminal state and releases the session.
func (s *Supervisor) shutdown() {
	if s.session.IsConnected() {
		s.session.Disconnect(s.quiesce)
	}
	s.tracker.SetStopped()
	s.metrics.SetConnectionState(StateStopped.String())
	s.log.Info("connection supervisor stopped")
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
