// Command virtual-sensor emulates a temperature/humidity device: it
// publishes simulated telemetry to an MQTT platform and follows the
// publishing settings the platform pushes back as shared attributes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/virtual-sensor/internal/attrs"
	"github.com/sweeney/virtual-sensor/internal/config"
	"github.com/sweeney/virtual-sensor/internal/conn"
	"github.com/sweeney/virtual-sensor/internal/metrics"
	"github.com/sweeney/virtual-sensor/internal/mqtt"
	"github.com/sweeney/virtual-sensor/internal/publish"
	"github.com/sweeney/virtual-sensor/internal/reading"
	"github.com/sweeney/virtual-sensor/internal/settings"
	"github.com/sweeney/virtual-sensor/internal/status"
	"github.com/sweeney/virtual-sensor/internal/web"
)

// shutdownGrace bounds how long shutdown waits for the workers. A
// connect attempt stuck in the transport must not hold up process exit.
const shutdownGrace = 5 * time.Second

func main() {
	// A .env file is optional; it feeds ${VAR} expansion in the config
	// file and the token fallback.
	_ = godotenv.Load()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig resolves the configuration from the optional YAML file and
// the command line. Flags win over the file; the file wins over the
// built-in defaults.
func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("virtual-sensor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	broker := fs.String("broker", "", "MQTT broker address (tcp://host:1883)")
	token := fs.String("token", "", "Device access token")
	device := fs.String("device", "", "Device name")
	listen := fs.String("listen", "", `HTTP status address ("off" to disable)`)
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := fs.String("log-file", "", `Append logs to this file as well as stdout ("" to disable)`)

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	// Only flags the user actually set override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.Broker = *broker
		case "token":
			cfg.Token = *token
		case "device":
			cfg.DeviceName = *device
		case "listen":
			cfg.Listen = *listen
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		}
	})
	if cfg.Listen == "off" {
		cfg.Listen = ""
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	// Set up logging
	logOut := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stdout, f)
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})).
		With("device", cfg.DeviceName)
	slog.SetDefault(logger)

	// Shared state: runtime settings, connection state, counters
	state := settings.New()
	connTracker := conn.NewTracker()
	recorder := metrics.NewPrometheusRecorder(nil)
	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:     cfg.Broker,
		DeviceName: cfg.DeviceName,
		ListenAddr: cfg.Listen,
		LogFile:    cfg.LogFile,
	}, state, connTracker)

	// MQTT session and attribute plumbing
	session := mqtt.NewRealSession(mqtt.Options{
		BrokerURL:  cfg.Broker,
		DeviceName: cfg.DeviceName,
		Token:      cfg.Token,
		Logger:     logger,
	})
	handler := attrs.NewHandler(state, tracker, recorder, logger)
	request, err := mqtt.FormatAttributeRequest("interval", "enabled", "firmware_version")
	if err != nil {
		return fmt.Errorf("encoding attribute request: %w", err)
	}

	sup := conn.NewSupervisor(conn.SupervisorConfig{
		Session: session,
		Tracker: connTracker,
		Backoff: conn.NewBackoffWithConfig(conn.BackoffConfig{
			Initial: cfg.BackoffBase(),
			Max:     cfg.BackoffMax(),
			Jitter:  cfg.Backoff.Jitter,
		}),
		Handler:         handler,
		SubscribeTopics: []string{mqtt.TopicAttributes, mqtt.TopicAttributesResponse},
		RequestTopic:    mqtt.TopicAttributesRequest,
		RequestPayload:  request,
		Metrics:         recorder,
		Logger:          logger,
	})
	loop := publish.NewLoop(publish.LoopConfig{
		State:        state,
		Conn:         connTracker,
		Session:      session,
		Source:       reading.NewSimulated(),
		Status:       tracker,
		DisabledPoll: cfg.DisabledPoll(),
		Metrics:      recorder,
		Logger:       logger,
	})

	// Start HTTP status server
	if cfg.Listen != "" {
		srv := web.New(cfg.Listen, tracker, recorder.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.Listen)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("started",
		"broker", cfg.Broker,
		"interval", state.Interval(),
		"listen", cfg.Listen)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logger.Warn("shutdown grace period expired")
	}
	return nil
}
