package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/virtual-sensor/internal/conn"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State         string       `json:"state"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Settings      SettingsJSON `json:"settings"`
	Counters      CountersJSON `json:"counters"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports the broker connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Retries   int    `json:"retries"`
	LastError string `json:"last_error,omitempty"`
}

// SettingsJSON is the JSON representation of the runtime settings.
type SettingsJSON struct {
	IntervalSeconds int64  `json:"interval_seconds"`
	Enabled         bool   `json:"enabled"`
	FirmwareVersion string `json:"firmware_version"`
}

// CountersJSON is the JSON representation of the lifetime counters.
type CountersJSON struct {
	Published       int `json:"published"`
	PublishFailures int `json:"publish_failures"`
	PublishSkipped  int `json:"publish_skipped"`
	UpdatesApplied  int `json:"updates_applied"`
	UpdatesRejected int `json:"updates_rejected"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker     string `json:"broker"`
	DeviceName string `json:"device_name"`
	ListenAddr string `json:"listen_addr"`
	LogFile    string `json:"log_file,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		State:         snap.Conn.State.String(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.Conn.State == conn.StateConnected,
			Broker:    snap.Config.Broker,
			Retries:   snap.Conn.Retries,
			LastError: snap.Conn.LastError,
		},
		Settings: SettingsJSON{
			IntervalSeconds: int64(snap.Settings.Interval.Seconds()),
			Enabled:         snap.Settings.Enabled,
			FirmwareVersion: snap.Settings.FirmwareVersion,
		},
		Counters: CountersJSON{
			Published:       snap.Counters.Published,
			PublishFailures: snap.Counters.PublishFailures,
			PublishSkipped:  snap.Counters.PublishSkipped,
			UpdatesApplied:  snap.Counters.UpdatesApplied,
			UpdatesRejected: snap.Counters.UpdatesRejected,
		},
		Config: ConfigJSON{
			Broker:     snap.Config.Broker,
			DeviceName: snap.Config.DeviceName,
			ListenAddr: snap.Config.ListenAddr,
			LogFile:    snap.Config.LogFile,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
