// Package config loads the daemon configuration from an optional YAML
// file, the environment, and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvToken names the environment variable consulted when the config
// file does not carry an access token. The token is a credential and
// never has a built-in default.
const EnvToken = "SENSOR_TOKEN"

// Built-in defaults, used when neither the file nor the flags say
// otherwise.
const (
	DefaultBroker     = "tcp://localhost:1883"
	DefaultDeviceName = "VirtualSensor01"
	DefaultListen     = ":9090"
	DefaultLogLevel   = "info"
	DefaultLogFile    = "virtual-sensor.log"
)

// Backoff configures the reconnect schedule.
type Backoff struct {
	BaseSeconds int64   `yaml:"base_seconds"`
	MaxSeconds  int64   `yaml:"max_seconds"`
	Jitter      float64 `yaml:"jitter"`
}

// Publish configures the telemetry loop.
type Publish struct {
	// DisabledPollSeconds is how often the loop re-checks the enabled
	// flag while publishing is switched off.
	DisabledPollSeconds int64 `yaml:"disabled_poll_seconds"`
}

// Config is the resolved daemon configuration.
type Config struct {
	Broker     string  `yaml:"broker"`
	Token      string  `yaml:"token"`
	DeviceName string  `yaml:"device_name"`
	Listen     string  `yaml:"listen"`
	LogLevel   string  `yaml:"log_level"`
	LogFile    string  `yaml:"log_file"`
	Backoff    Backoff `yaml:"backoff"`
	Publish    Publish `yaml:"publish"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Broker:     DefaultBroker,
		DeviceName: DefaultDeviceName,
		Listen:     DefaultListen,
		LogLevel:   DefaultLogLevel,
		LogFile:    DefaultLogFile,
		Backoff:    Backoff{BaseSeconds: 1, MaxSeconds: 60, Jitter: 0.2},
		Publish:    Publish{DisabledPollSeconds: 1},
	}
}

// Load reads the YAML file at path over the defaults. References like
// ${HOME} are expanded from the environment before parsing. An empty
// path skips the file. A missing token falls back to EnvToken.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv(EnvToken)
	}
	return cfg, nil
}

// maxSeconds is the largest second count the duration helpers can
// return without overflowing.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// Validate reports configuration errors that must stop startup.
func (c Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker address is required")
	}
	if c.Token == "" {
		return fmt.Errorf("device access token is required: set token in the config file or %s in the environment", EnvToken)
	}
	if c.DeviceName == "" {
		return errors.New("device name is required")
	}
	if c.Backoff.BaseSeconds < 1 {
		return fmt.Errorf("backoff base must be at least 1 second, got %d", c.Backoff.BaseSeconds)
	}
	if c.Backoff.MaxSeconds < c.Backoff.BaseSeconds {
		return fmt.Errorf("backoff max (%ds) must not be below base (%ds)", c.Backoff.MaxSeconds, c.Backoff.BaseSeconds)
	}
	if c.Backoff.MaxSeconds > maxSeconds {
		return fmt.Errorf("backoff max (%ds) is too large to hold as a duration", c.Backoff.MaxSeconds)
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return fmt.Errorf("backoff jitter must be within [0, 1], got %g", c.Backoff.Jitter)
	}
	if c.Publish.DisabledPollSeconds < 1 {
		return fmt.Errorf("disabled poll must be at least 1 second, got %d", c.Publish.DisabledPollSeconds)
	}
	if c.Publish.DisabledPollSeconds > maxSeconds {
		return fmt.Errorf("disabled poll (%ds) is too large to hold as a duration", c.Publish.DisabledPollSeconds)
	}
	return nil
}

// BackoffBase returns the initial reconnect delay.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Backoff.BaseSeconds) * time.Second
}

// BackoffMax returns the reconnect delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxSeconds) * time.Second
}

// DisabledPoll returns the re-check cadence while publishing is off.
func (c Config) DisabledPoll() time.Duration {
	return time.Duration(c.Publish.DisabledPollSeconds) * time.Second
}
