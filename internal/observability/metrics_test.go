package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	}
	t.Fatalf("unsupported metric %v", c.Desc())
	return 0
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "metrics_record_test")

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	if got := value(t, m.ActiveConnections); got != 1 {
		t.Fatalf("active_connections = %v, want 1", got)
	}

	m.Reconnect("commit", false)
	if got := value(t, m.Reconnects.WithLabelValues("commit", "failed")); got != 1 {
		t.Fatalf("reconnects{commit,failed} = %v, want 1", got)
	}

	m.FunctionCall("send_webhook", "ok", 20*time.Millisecond)
	if got := value(t, m.FunctionCalls.WithLabelValues("send_webhook", "ok")); got != 1 {
		t.Fatalf("function_calls = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ClientMessage("ping")
	m.Reconnect("relay", true)
	m.ObserveUpstreamConnect(time.Second)
}

func TestInitTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(&buf)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	_, span := Tracer("test").Start(context.Background(), "probe")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"probe"`)) {
		t.Fatalf("exported spans missing probe span: %s", buf.String())
	}
}
