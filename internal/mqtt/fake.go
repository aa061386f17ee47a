package mqtt

import (
	"errors"
	"sync"
	"time"
)

// PublishedMessage records one Publish call.
type PublishedMessage struct {
	Topic   string
	Payload []byte
	At      time.Time
}

// FakeSession records session calls and lets tests inject inbound
// events. Unlike the other fakes in this repo it is mutex-protected:
// the supervisor and publish loop run in their own goroutines during
// tests while the test goroutine scripts and inspects it.
type FakeSession struct {
	mu sync.Mutex

	connectErrs  []error // popped per Connect call; exhausted means success
	connectCalls int
	subscribeErr map[string]error
	subscribed   []string
	published    []PublishedMessage
	publishErr   error
	connected    bool
	disconnects  int
	ops          []string // interleaved subscribe/publish order

	events chan Event
}

// NewFakeSession creates a FakeSession for testing.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		subscribeErr: make(map[string]error),
		events:       make(chan Event, 16),
	}
}

// Connect consumes the next scripted connect result. With nothing
// scripted it succeeds.
func (f *FakeSession) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

// Disconnect marks the session disconnected.
func (f *FakeSession) Disconnect(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

// Subscribe records the topic, failing if an error was scripted for it.
func (f *FakeSession) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.subscribeErr[topic]; err != nil {
		return err
	}
	f.subscribed = append(f.subscribed, topic)
	f.ops = append(f.ops, "subscribe:"+topic)
	return nil
}

// Publish records the message. It fails with the scripted publish error,
// or when the session is not connected.
func (f *FakeSession) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}
	if !f.connected {
		return errors.New("not connected")
	}
	f.published = append(f.published, PublishedMessage{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
		At:      time.Now(),
	})
	f.ops = append(f.ops, "publish:"+topic)
	return nil
}

// IsConnected reports the fake's connection flag.
func (f *FakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Events returns the injectable event channel.
func (f *FakeSession) Events() <-chan Event {
	return f.events
}

// QueueConnectError scripts the result of an upcoming Connect call.
// Queue nil for an explicit success slot.
func (f *FakeSession) QueueConnectError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErrs = append(f.connectErrs, err)
}

// SetSubscribeError makes Subscribe fail for the given topic.
func (f *FakeSession) SetSubscribeError(topic string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.subscribeErr, topic)
		return
	}
	f.subscribeErr[topic] = err
}

// SetPublishError makes every Publish fail with err until cleared.
func (f *FakeSession) SetPublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}

// EmitMessage injects an inbound message event.
func (f *FakeSession) EmitMessage(topic string, payload []byte) {
	f.events <- Message{Topic: topic, Payload: payload}
}

// EmitConnectionLost injects a connection-lost event and marks the
// session disconnected, as the real transport would.
func (f *FakeSession) EmitConnectionLost(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- ConnectionLost{Err: err}
}

// ConnectCalls returns how many times Connect was called.
func (f *FakeSession) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// Disconnects returns how many times Disconnect was called.
func (f *FakeSession) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// Subscribed returns the topics subscribed so far, in order.
func (f *FakeSession) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// Published returns the messages published so far, in order.
func (f *FakeSession) Published() []PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PublishedMessage(nil), f.published...)
}

// Ops returns subscribe and publish calls interleaved in call order,
// as "subscribe:<topic>" and "publish:<topic>" strings.
func (f *FakeSession) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// Reset clears recordings and scripted errors.
func (f *FakeSession) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectErrs = nil
	f.connectCalls = 0
	f.subscribeErr = make(map[string]error)
	f.subscribed = nil
	f.published = nil
	f.publishErr = nil
	f.connected = false
	f.disconnects = 0
	f.ops = nil

	for {
		select {
		case <-f.events:
		default:
			return
		}
	}
}

var _ Session = (*FakeSession)(nil)
