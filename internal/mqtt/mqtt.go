// Package mqtt provides the broker session with abstraction for testing.
// The real implementation wraps the Eclipse Paho client. Reconnection
// policy is deliberately not implemented here; the connection supervisor
// owns it.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/virtual-sensor/internal/reading"
)

// ThingsBoard device API topics.
const (
	// TopicTelemetry carries outbound sensor readings.
	TopicTelemetry = "v1/devices/me/telemetry"

	// TopicAttributes delivers shared-attribute pushes from the platform.
	TopicAttributes = "v1/devices/me/attributes"

	// TopicAttributesRequest is where the device asks for the current
	// attribute values.
	TopicAttributesRequest = "v1/devices/me/attributes/request/1"

	// TopicAttributesResponse delivers the answer to a request sent on
	// TopicAttributesRequest.
	TopicAttributesResponse = "v1/devices/me/attributes/response/1"
)

// Session is a single logical broker session.
type Session interface {
	// Connect performs one connection attempt. It does not retry.
	Connect() error

	// Disconnect closes the session, waiting up to quiesce for
	// in-flight messages. Safe to call when not connected.
	Disconnect(quiesce time.Duration)

	// Subscribe registers interest in a topic. Matching messages are
	// delivered as Message values on Events().
	Subscribe(topic string) error

	// Publish sends one message and waits for the broker handshake.
	// Returns error if publishing fails (must not crash the process).
	Publish(topic string, payload []byte) error

	// IsConnected reports whether the underlying transport is up.
	IsConnected() bool

	// Events delivers inbound messages and connection-lost
	// notifications. The transport's own goroutines only enqueue here;
	// handler code never runs on them.
	Events() <-chan Event
}

// Event is a notification delivered on Session.Events().
type Event interface {
	isEvent()
}

// Message is an inbound message on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

// ConnectionLost reports that an established connection dropped
// unexpectedly. It is not emitted for deliberate Disconnect calls.
type ConnectionLost struct {
	Err error
}

func (Message) isEvent()        {}
func (ConnectionLost) isEvent() {}

// TelemetryPayload is the wire shape of one sensor reading.
type TelemetryPayload struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// FormatTelemetryPayload creates the JSON body for a telemetry publish.
func FormatTelemetryPayload(s reading.Sample) ([]byte, error) {
	payload := TelemetryPayload{
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
	}
	return json.Marshal(payload)
}

// AttributeRequest is the body published on TopicAttributesRequest. The
// platform answers on TopicAttributesResponse with the current values of
// the named keys.
type AttributeRequest struct {
	ClientKeys string `json:"clientKeys"`
}

// FormatAttributeRequest creates the JSON body asking for the given
// attribute keys.
func FormatAttributeRequest(keys ...string) ([]byte, error) {
	payload := AttributeRequest{ClientKeys: strings.Join(keys, ",")}
	return json.Marshal(payload)
}
