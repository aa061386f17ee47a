// Package attrs applies shared attribute payloads from the platform to
// the runtime settings, one field at a time. Malformed fields are
// dropped with a warning; the rest of the update still applies.
package attrs

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/virtual-sensor/internal/metrics"
	"github.com/sweeney/virtual-sensor/internal/settings"
	"github.com/sweeney/virtual-sensor/internal/status"
)

// Handler translates inbound attribute payloads into settings writes.
// It never acks and never publishes; calls arrive from the connection
// supervisor goroutine only.
type Handler struct {
	state   *settings.State
	status  *status.Tracker
	metrics metrics.Recorder
	log     *slog.Logger
}

// NewHandler creates a Handler writing to the given settings state.
func NewHandler(state *settings.State, tracker *status.Tracker, rec metrics.Recorder, log *slog.Logger) *Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		state:   state,
		status:  tracker,
		metrics: rec,
		log:     log,
	}
}

// HandleMessage merges one attribute payload into the settings. The
// snapshot response and live pushes use the same rule: every
// recognized, coercible field overwrites the current value; everything
// else is left alone.
func (h *Handler) HandleMessage(topic string, payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		h.log.Warn("discarding malformed attribute payload", "topic", topic, "error", err)
		h.status.RecordUpdateRejected()
		h.metrics.AttributeUpdate("payload", metrics.ResultRejected)
		return
	}

	// Snapshot responses arrive wrapped in a "shared" envelope; live
	// pushes arrive bare.
	if shared, ok := raw["shared"]; ok {
		inner, ok := shared.(map[string]any)
		if !ok {
			h.log.Warn("discarding attribute payload with non-object shared section", "topic", topic)
			h.status.RecordUpdateRejected()
			h.metrics.AttributeUpdate("payload", metrics.ResultRejected)
			return
		}
		raw = inner
	}

	recognized := false
	if v, ok := raw["interval"]; ok {
		recognized = true
		h.applyInterval(v)
	}
	if v, ok := raw["enabled"]; ok {
		recognized = true
		h.applyEnabled(v)
	}
	if v, ok := raw["firmware_version"]; ok {
		recognized = true
		h.applyFirmware(v)
	}

	if !recognized {
		h.log.Debug("attribute payload contained no recognized keys", "topic", topic)
	}
}

func (h *Handler) applyInterval(v any) {
	d, ok := coerceInterval(v)
	if !ok {
		h.log.Warn("ignoring invalid interval attribute", "value", v)
		h.status.RecordUpdateRejected()
		h.metrics.AttributeUpdate("interval", metrics.ResultRejected)
		return
	}

	old := h.state.SetInterval(d)
	h.log.Info("interval updated", "old", old, "new", d)
	h.status.RecordUpdateApplied()
	h.metrics.AttributeUpdate("interval", metrics.ResultApplied)
	h.metrics.SetPublishInterval(d)
}

func (h *Handler) applyEnabled(v any) {
	enabled, ok := coerceEnabled(v)
	if !ok {
		h.log.Warn("ignoring invalid enabled attribute", "value", v)
		h.status.RecordUpdateRejected()
		h.metrics.AttributeUpdate("enabled", metrics.ResultRejected)
		return
	}

	old := h.state.SetEnabled(enabled)
	h.log.Info("enabled updated", "old", old, "new", enabled)
	h.status.RecordUpdateApplied()
	h.metrics.AttributeUpdate("enabled", metrics.ResultApplied)
}

func (h *Handler) applyFirmware(v any) {
	version, ok := coerceFirmware(v)
	if !ok {
		h.log.Warn("ignoring invalid firmware_version attribute", "value", v)
		h.status.RecordUpdateRejected()
		h.metrics.AttributeUpdate("firmware_version", metrics.ResultRejected)
		return
	}

	old := h.state.SetFirmwareVersion(version)
	h.log.Info("firmware version updated", "old", old, "new", version)
	h.status.RecordUpdateApplied()
	h.metrics.AttributeUpdate("firmware_version", metrics.ResultApplied)

	// The real device would flash and reboot here; this one only
	// pretends.
	if old != version {
		h.log.Info("simulating firmware update", "from", old, "to", version)
		h.log.Info("firmware update complete", "version", version)
	}
}

// maxIntervalSeconds is the largest whole-second interval that still
// fits in a time.Duration once converted to nanoseconds.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// coerceInterval accepts a JSON number (truncated toward zero) or a
// decimal string. Values below one second are invalid, as are values
// too large to hold as a nanosecond count.
func coerceInterval(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		if n < 1 || n > float64(maxIntervalSeconds) {
			return 0, false
		}
		return time.Duration(int64(n)) * time.Second, true
	case string:
		sec, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil || sec < 1 || sec > maxIntervalSeconds {
			return 0, false
		}
		return time.Duration(sec) * time.Second, true
	default:
		return 0, false
	}
}

// coerceEnabled accepts a JSON bool, the strings "true"/"false" in any
// case, or a number (zero is false).
func coerceEnabled(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	case float64:
		return b != 0, true
	default:
		return false, false
	}
}

// coerceFirmware accepts any JSON scalar and renders it as a string.
func coerceFirmware(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
