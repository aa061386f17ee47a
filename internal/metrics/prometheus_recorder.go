package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg *prom.Registry

	connectAttempts prom.Counter
	connects        prom.Counter
	connectFailures prom.Counter
	disconnects     prom.Counter
	connectionState *prom.GaugeVec
	published       prom.Counter
	publishFailures prom.Counter
	publishSkipped  prom.Counter
	attributeTotal  *prom.CounterVec
	publishInterval prom.Gauge
}

// NewPrometheusRecorder constructs the agent metrics and registers them
// on reg. A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.connectAttempts = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "connect_attempts_total",
		Help:      "Broker connection attempts",
	})
	pr.connects = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "connects_total",
		Help:      "Successful broker connections",
	})
	pr.connectFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "connect_failures_total",
		Help:      "Failed broker connection attempts",
	})
	pr.disconnects = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "disconnects_total",
		Help:      "Unexpected broker disconnects",
	})
	pr.connectionState = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "virtual_sensor",
		Name:      "connection_state",
		Help:      "Current connection state (1 for the active state)",
	}, []string{"state"})
	pr.published = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "telemetry_published_total",
		Help:      "Telemetry messages published",
	})
	pr.publishFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "telemetry_failures_total",
		Help:      "Telemetry publishes that failed",
	})
	pr.publishSkipped = prom.NewCounter(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "telemetry_skipped_total",
		Help:      "Publish cycles skipped while disconnected",
	})
	pr.attributeTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "virtual_sensor",
		Name:      "attribute_updates_total",
		Help:      "Attribute field updates by outcome",
	}, []string{"field", "result"})
	pr.publishInterval = prom.NewGauge(prom.GaugeOpts{
		Namespace: "virtual_sensor",
		Name:      "publish_interval_seconds",
		Help:      "Current telemetry publish interval",
	})
	reg.MustRegister(pr.connectAttempts, pr.connects, pr.connectFailures,
		pr.disconnects, pr.connectionState, pr.published,
		pr.publishFailures, pr.publishSkipped, pr.attributeTotal,
		pr.publishInterval)
	return pr
}

// Handler returns an http.Handler serving the recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	if p == nil || p.reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ConnectAttempt() {
	if p == nil || p.connectAttempts == nil {
		return
	}
	p.connectAttempts.Inc()
}

func (p *PrometheusRecorder) ConnectSuccess() {
	if p == nil || p.connects == nil {
		return
	}
	p.connects.Inc()
}

func (p *PrometheusRecorder) ConnectFailure() {
	if p == nil || p.connectFailures == nil {
		return
	}
	p.connectFailures.Inc()
}

func (p *PrometheusRecorder) ConnectionLost() {
	if p == nil || p.disconnects == nil {
		return
	}
	p.disconnects.Inc()
}

// SetConnectionState marks state as the single active connection state.
func (p *PrometheusRecorder) SetConnectionState(state string) {
	if p == nil || p.connectionState == nil {
		return
	}
	p.connectionState.Reset()
	p.connectionState.WithLabelValues(state).Set(1)
}

func (p *PrometheusRecorder) TelemetryPublished() {
	if p == nil || p.published == nil {
		return
	}
	p.published.Inc()
}

func (p *PrometheusRecorder) TelemetryFailure() {
	if p == nil || p.publishFailures == nil {
		return
	}
	p.publishFailures.Inc()
}

func (p *PrometheusRecorder) TelemetrySkipped() {
	if p == nil || p.publishSkipped == nil {
		return
	}
	p.publishSkipped.Inc()
}

func (p *PrometheusRecorder) AttributeUpdate(field string, result ResultLabel) {
	if p == nil || p.attributeTotal == nil {
		return
	}
	p.attributeTotal.WithLabelValues(field, string(result)).Inc()
}

func (p *PrometheusRecorder) SetPublishInterval(d time.Duration) {
	if p == nil || p.publishInterval == nil {
		return
	}
	p.publishInterval.Set(d.Seconds())
}

var _ Recorder = (*PrometheusRecorder)(nil)
