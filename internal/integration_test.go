package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sweeney/virtual-sensor/internal/attrs"
	"github.com/sweeney/virtual-sensor/internal/conn"
	"github.com/sweeney/virtual-sensor/internal/mqtt"
	"github.com/sweeney/virtual-sensor/internal/publish"
	"github.com/sweeney/virtual-sensor/internal/reading"
	"github.com/sweeney/virtual-sensor/internal/settings"
	"github.com/sweeney/virtual-sensor/internal/status"
)

// harness wires a fake session to the real supervisor, attribute
// handler, publish loop, and trackers: everything main assembles,
// minus the transport.
type harness struct {
	session *mqtt.FakeSession
	state   *settings.State
	connTr  *conn.Tracker
	tracker *status.Tracker
	sup     *conn.Supervisor
	loop    *publish.Loop
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	session := mqtt.NewFakeSession()
	state := settings.New()
	connTr := conn.NewTracker()
	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:     "tcp://broker.test:1883",
		DeviceName: "VirtualSensor01",
	}, state, connTr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := attrs.NewHandler(state, tracker, nil, logger)
	request, err := mqtt.FormatAttributeRequest("interval", "enabled", "firmware_version")
	if err != nil {
		t.Fatalf("formatting attribute request: %v", err)
	}

	sup := conn.NewSupervisor(conn.SupervisorConfig{
		Session: session,
		Tracker: connTr,
		Backoff: conn.NewBackoffWithConfig(conn.BackoffConfig{
			Initial: time.Millisecond,
			Max:     5 * time.Millisecond,
			Jitter:  0,
		}),
		Handler:           handler,
		SubscribeTopics:   []string{mqtt.TopicAttributes, mqtt.TopicAttributesResponse},
		RequestTopic:      mqtt.TopicAttributesRequest,
		RequestPayload:    request,
		DisconnectQuiesce: time.Millisecond,
		Logger:            logger,
	})
	loop := publish.NewLoop(publish.LoopConfig{
		State:        state,
		Conn:         connTr,
		Session:      session,
		Source:       reading.NewSimulated(),
		Status:       tracker,
		DisabledPoll: 10 * time.Millisecond,
		Logger:       logger,
	})

	return &harness{
		session: session,
		state:   state,
		connTr:  connTr,
		tracker: tracker,
		sup:     sup,
		loop:    loop,
	}
}

// startSupervisor runs the connection supervisor until test cleanup.
func (h *harness) startSupervisor(t *testing.T) {
	t.Helper()
	h.startWorker(t, h.sup.Run)
}

// startLoop runs the publish loop until test cleanup.
func (h *harness) startLoop(t *testing.T) {
	t.Helper()
	h.startWorker(t, h.loop.Run)
}

func (h *harness) startWorker(t *testing.T, run func(context.Context)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	})
}

func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

// telemetryCount counts messages published on the telemetry topic,
// ignoring the attribute request the supervisor sends on connect.
func (h *harness) telemetryCount() int {
	n := 0
	for _, m := range h.session.Published() {
		if m.Topic == mqtt.TopicTelemetry {
			n++
		}
	}
	return n
}

// TestIntegrationStartupHandshake verifies the connect sequence:
// subscribe to both attribute topics, then request the current values,
// then apply the response to the runtime settings.
func TestIntegrationStartupHandshake(t *testing.T) {
	h := newHarness(t)
	h.startSupervisor(t)

	waitFor(t, 2*time.Second, "snapshot request never sent", func() bool {
		return len(h.session.Ops()) >= 3
	})

	want := []string{
		"subscribe:" + mqtt.TopicAttributes,
		"subscribe:" + mqtt.TopicAttributesResponse,
		"publish:" + mqtt.TopicAttributesRequest,
	}
	ops := h.session.Ops()
	for i, op := range want {
		if ops[i] != op {
			t.Fatalf("op %d: got %q, want %q", i, ops[i], op)
		}
	}

	// The platform answers with the stored shared attributes.
	h.session.EmitMessage(mqtt.TopicAttributesResponse,
		[]byte(`{"shared":{"interval":10,"enabled":false,"firmware_version":"2.0"}}`))

	waitFor(t, 2*time.Second, "settings never applied", func() bool {
		snap := h.state.Snapshot()
		return snap.Interval == 10*time.Second && !snap.Enabled && snap.FirmwareVersion == "2.0"
	})

	counters := h.tracker.Counters()
	if counters.UpdatesApplied != 3 {
		t.Errorf("UpdatesApplied = %d, want 3", counters.UpdatesApplied)
	}
	if counters.UpdatesRejected != 0 {
		t.Errorf("UpdatesRejected = %d, want 0", counters.UpdatesRejected)
	}
	if !h.connTr.IsConnected() {
		t.Error("expected connected state after handshake")
	}
}

// TestIntegrationTelemetryFlows verifies that readings reach the
// telemetry topic once connected and that the payload is well-formed.
func TestIntegrationTelemetryFlows(t *testing.T) {
	h := newHarness(t)
	h.state.SetInterval(20 * time.Millisecond)
	h.startSupervisor(t)
	h.startLoop(t)

	waitFor(t, 2*time.Second, "no telemetry published", func() bool {
		return h.telemetryCount() >= 2
	})

	for _, m := range h.session.Published() {
		if m.Topic != mqtt.TopicTelemetry {
			continue
		}
		var sample struct {
			Temperature *float64 `json:"temperature"`
			Humidity    *float64 `json:"humidity"`
		}
		if err := json.Unmarshal(m.Payload, &sample); err != nil {
			t.Fatalf("invalid telemetry JSON %s: %v", m.Payload, err)
		}
		if sample.Temperature == nil || sample.Humidity == nil {
			t.Fatalf("telemetry %s missing fields", m.Payload)
		}
	}

	if got := h.tracker.Counters().Published; got < 2 {
		t.Errorf("Published counter = %d, want at least 2", got)
	}
}

// TestIntegrationDisablePushStopsTelemetry verifies that an inbound
// enabled=false attribute stops the telemetry stream and a later
// enabled=true resumes it without waiting out a full interval.
func TestIntegrationDisablePushStopsTelemetry(t *testing.T) {
	h := newHarness(t)
	h.state.SetInterval(100 * time.Millisecond)
	h.startSupervisor(t)
	h.startLoop(t)

	waitFor(t, 2*time.Second, "no telemetry before disable", func() bool {
		return h.telemetryCount() >= 1
	})

	h.session.EmitMessage(mqtt.TopicAttributes, []byte(`{"enabled":false}`))
	waitFor(t, 2*time.Second, "disable never applied", func() bool {
		return !h.state.Enabled()
	})

	// Let any in-flight cycle finish, then confirm the stream is quiet.
	time.Sleep(150 * time.Millisecond)
	before := h.telemetryCount()
	time.Sleep(100 * time.Millisecond)
	if after := h.telemetryCount(); after != before {
		t.Fatalf("telemetry while disabled: count went %d -> %d", before, after)
	}

	h.session.EmitMessage(mqtt.TopicAttributes, []byte(`{"enabled":true}`))
	waitFor(t, 2*time.Second, "re-enable never applied", h.state.Enabled)
	reEnabled := time.Now()
	waitFor(t, 2*time.Second, "telemetry did not resume", func() bool {
		return h.telemetryCount() > before
	})
	// The disabled-poll cadence bounds the resume latency, not the
	// publish interval.
	if elapsed := time.Since(reEnabled); elapsed > 80*time.Millisecond {
		t.Errorf("first publish after re-enable took %v", elapsed)
	}
}

// TestIntegrationReconnectRepeatsHandshake verifies that after a
// connection drop the supervisor reconnects, resubscribes, requests the
// attributes again, and telemetry resumes.
func TestIntegrationReconnectRepeatsHandshake(t *testing.T) {
	h := newHarness(t)
	h.state.SetInterval(20 * time.Millisecond)
	h.startSupervisor(t)
	h.startLoop(t)

	waitFor(t, 2*time.Second, "no telemetry before drop", func() bool {
		return h.telemetryCount() >= 1
	})

	h.session.EmitConnectionLost(errors.New("broker went away"))

	waitFor(t, 2*time.Second, "never reconnected", func() bool {
		return h.session.ConnectCalls() >= 2 && h.connTr.IsConnected()
	})

	// Both subscriptions and the attribute request happen again.
	subs := 0
	reqs := 0
	for _, op := range h.session.Ops() {
		switch op {
		case "subscribe:" + mqtt.TopicAttributesResponse:
			subs++
		case "publish:" + mqtt.TopicAttributesRequest:
			reqs++
		}
	}
	if subs < 2 || reqs < 2 {
		t.Errorf("handshake not repeated: %d response subscribes, %d requests", subs, reqs)
	}

	if got := h.connTr.Retries(); got != 0 {
		t.Errorf("Retries = %d after successful reconnect, want 0", got)
	}

	before := h.telemetryCount()
	waitFor(t, 2*time.Second, "telemetry did not resume after reconnect", func() bool {
		return h.telemetryCount() > before
	})
}

// TestIntegrationBadFieldsDegradePerField verifies that a response
// mixing valid and invalid fields applies the valid ones and leaves the
// rest untouched.
func TestIntegrationBadFieldsDegradePerField(t *testing.T) {
	h := newHarness(t)
	h.startSupervisor(t)

	waitFor(t, 2*time.Second, "never connected", h.connTr.IsConnected)

	h.session.EmitMessage(mqtt.TopicAttributesResponse,
		[]byte(`{"shared":{"interval":"soon","enabled":false,"firmware_version":"3.1"}}`))

	waitFor(t, 2*time.Second, "valid fields never applied", func() bool {
		snap := h.state.Snapshot()
		return !snap.Enabled && snap.FirmwareVersion == "3.1"
	})

	if got := h.state.Interval(); got != 5*time.Second {
		t.Errorf("Interval = %v after invalid value, want default 5s", got)
	}
	counters := h.tracker.Counters()
	if counters.UpdatesApplied != 2 {
		t.Errorf("UpdatesApplied = %d, want 2", counters.UpdatesApplied)
	}
	if counters.UpdatesRejected != 1 {
		t.Errorf("UpdatesRejected = %d, want 1", counters.UpdatesRejected)
	}

	// Garbage afterwards changes nothing.
	h.session.EmitMessage(mqtt.TopicAttributes, []byte(`not json`))
	waitFor(t, 2*time.Second, "garbage never counted", func() bool {
		return h.tracker.Counters().UpdatesRejected == 2
	})
	snap := h.state.Snapshot()
	if snap.Enabled || snap.FirmwareVersion != "3.1" || snap.Interval != 5*time.Second {
		t.Errorf("settings changed by garbage payload: %+v", snap)
	}
}

// TestIntegrationStatusReflectsSystem verifies the status JSON built
// from the live trackers matches what the system actually did.
func TestIntegrationStatusReflectsSystem(t *testing.T) {
	h := newHarness(t)
	h.state.SetInterval(20 * time.Millisecond)
	h.startSupervisor(t)
	h.startLoop(t)

	waitFor(t, 2*time.Second, "no telemetry published", func() bool {
		return h.telemetryCount() >= 1
	})
	h.session.EmitMessage(mqtt.TopicAttributes, []byte(`{"firmware_version":"4.2"}`))
	waitFor(t, 2*time.Second, "firmware never applied", func() bool {
		return h.state.Snapshot().FirmwareVersion == "4.2"
	})

	out := status.FormatJSON(h.tracker.Snapshot())
	var parsed status.StatusJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}

	if parsed.Status.State != "connected" {
		t.Errorf("state: got %q, want connected", parsed.Status.State)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("mqtt.connected should be true")
	}
	if parsed.Status.Settings.FirmwareVersion != "4.2" {
		t.Errorf("firmware: got %q, want 4.2", parsed.Status.Settings.FirmwareVersion)
	}
	if parsed.Status.Counters.Published < 1 {
		t.Errorf("published counter: got %d, want at least 1", parsed.Status.Counters.Published)
	}
	if parsed.Status.Counters.UpdatesApplied != 1 {
		t.Errorf("updates applied: got %d, want 1", parsed.Status.Counters.UpdatesApplied)
	}
	if parsed.Status.Config.Broker != "tcp://broker.test:1883" {
		t.Errorf("broker: got %q", parsed.Status.Config.Broker)
	}
}

// TestIntegrationRetriesUntilBrokerAppears verifies the device keeps
// attempting to connect through failures and recovers once the broker
// accepts, with the retry counter reset on success.
func TestIntegrationRetriesUntilBrokerAppears(t *testing.T) {
	h := newHarness(t)
	h.state.SetInterval(20 * time.Millisecond)
	for i := 0; i < 3; i++ {
		h.session.QueueConnectError(errors.New("connection refused"))
	}
	h.startSupervisor(t)
	h.startLoop(t)

	waitFor(t, 2*time.Second, "never connected through failures", h.connTr.IsConnected)

	if got := h.session.ConnectCalls(); got != 4 {
		t.Errorf("ConnectCalls = %d, want 4", got)
	}
	if got := h.connTr.Retries(); got != 0 {
		t.Errorf("Retries = %d after success, want 0", got)
	}

	// The loop skipped cycles while the broker was refusing.
	waitFor(t, 2*time.Second, "telemetry never flowed", func() bool {
		return h.telemetryCount() >= 1
	})
}
