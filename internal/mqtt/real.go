package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepalive      = 60 * time.Second

	// eventBuffer bounds the inbound event channel. The supervisor
	// drains it promptly; messages arriving while it is full are
	// dropped rather than blocking the transport's goroutines.
	eventBuffer = 16
)

// QoS levels per the device API: telemetry and requests are confirmed by
// the broker, attribute subscriptions are fire-and-forget.
const (
	qosPublish   = 1
	qosSubscribe = 0
)

// Options configure a RealSession.
type Options struct {
	// BrokerURL is the broker address, e.g. "tcp://host:1883".
	BrokerURL string

	// DeviceName is the client identity stem. A short random suffix is
	// appended so a restarted instance never collides with the broker's
	// lingering session for the previous run.
	DeviceName string

	// Token is the device access token, sent as the MQTT username.
	Token string

	// Logger for session-level events. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// RealSession talks to an actual MQTT broker.
type RealSession struct {
	client paho.Client
	events chan Event
	log    *slog.Logger
}

// NewRealSession creates a session for the given broker. It does not
// connect; call Connect.
func NewRealSession(opts Options) *RealSession {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &RealSession{
		events: make(chan Event, eventBuffer),
		log:    log,
	}

	clientID := opts.DeviceName + "-" + uuid.New().String()[:8]
	po := paho.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(clientID).
		SetUsername(opts.Token).
		SetKeepAlive(keepalive).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(s.onConnectionLost).
		SetDefaultPublishHandler(s.onMessage)

	s.client = paho.NewClient(po)
	return s
}

// Connect performs one connection attempt against the broker.
func (s *RealSession) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Disconnect closes the connection, allowing up to quiesce for in-flight
// work. Paho ignores the call when not connected.
func (s *RealSession) Disconnect(quiesce time.Duration) {
	s.client.Disconnect(uint(quiesce.Milliseconds()))
}

// Subscribe registers interest in topic. Messages arrive on Events().
func (s *RealSession) Subscribe(topic string) error {
	token := s.client.Subscribe(topic, qosSubscribe, nil)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends one message and waits for the broker handshake.
func (s *RealSession) Publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, qosPublish, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the transport is up.
func (s *RealSession) IsConnected() bool {
	return s.client.IsConnected()
}

// Events returns the inbound event channel.
func (s *RealSession) Events() <-chan Event {
	return s.events
}

// onMessage runs on a paho goroutine. It only enqueues; if the channel
// is full the message is dropped so the transport never stalls.
func (s *RealSession) onMessage(_ paho.Client, msg paho.Message) {
	ev := Message{Topic: msg.Topic(), Payload: msg.Payload()}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event channel full, dropping message", "topic", msg.Topic())
	}
}

// onConnectionLost runs on a paho goroutine. The send blocks if the
// channel is full: the supervisor always drains events until it sees the
// lost notification, so the send completes. A message racing this
// callback can still land behind the notification; the supervisor
// flushes those leftovers before its next connect attempt.
func (s *RealSession) onConnectionLost(_ paho.Client, err error) {
	s.events <- ConnectionLost{Err: err}
}

var _ Session = (*RealSession)(nil)
