package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ActiveAssistants  prometheus.Gauge
	ClientMessages    *prometheus.CounterVec
	UpstreamEvents    *prometheus.CounterVec
	FunctionCalls     *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	SetupFailures     *prometheus.CounterVec
	FunctionLatency   *prometheus.HistogramVec
	UpstreamConnect   prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open client websocket connections.",
		}),
		ActiveAssistants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_assistants",
			Help:      "Number of assistants with at least one open connection.",
		}),
		ClientMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_messages_total",
			Help:      "Client websocket messages by type.",
		}, []string{"type"}),
		UpstreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_events_total",
			Help:      "Realtime API events by type.",
		}, []string{"type"}),
		FunctionCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calls_total",
			Help:      "Function calls by function and outcome.",
		}, []string{"function", "outcome"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_reconnects_total",
			Help:      "Upstream reconnect attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		SetupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setup_failures_total",
			Help:      "Connection setup failures by error code.",
		}, []string{"code"}),
		FunctionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "function_latency_seconds",
			Help:      "Function execution latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"function"}),
		UpstreamConnect: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_connect_seconds",
			Help:      "Time to open the realtime API channel and send session.update.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) SetActiveAssistants(n int) {
	if m == nil {
		return
	}
	m.ActiveAssistants.Set(float64(n))
}

func (m *Metrics) ClientMessage(kind string) {
	if m == nil {
		return
	}
	m.ClientMessages.WithLabelValues(kind).Inc()
}

func (m *Metrics) UpstreamEvent(kind string) {
	if m == nil {
		return
	}
	m.UpstreamEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) FunctionCall(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FunctionCalls.WithLabelValues(name, outcome).Inc()
	if elapsed > 0 {
		m.FunctionLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Reconnect(trigger string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	m.Reconnects.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) SetupFailure(code string) {
	if m == nil {
		return
	}
	m.SetupFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveUpstreamConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamConnect.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
