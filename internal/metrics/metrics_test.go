// FILE: metrics_test.go
package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("reading gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestSetWorkerRunningTogglesGauge(t *testing.T) {
	SetWorkerRunning("BINANCE", "BTC", true)
	if v := gaugeValue(t, WorkersRunning.WithLabelValues("BINANCE", "BTC")); v != 1 {
		t.Fatalf("expected gauge 1 after running=true, got %v", v)
	}
	SetWorkerRunning("BINANCE", "BTC", false)
	if v := gaugeValue(t, WorkersRunning.WithLabelValues("BINANCE", "BTC")); v != 0 {
		t.Fatalf("expected gauge 0 after running=false, got %v", v)
	}
}

func TestCountersAcceptLabels(t *testing.T) {
	OrdersPlaced.WithLabelValues("BINANCE", "ETH", "BUY").Inc()
	OrdersFilled.WithLabelValues("BINANCE", "ETH", "BUY").Inc()
	OrdersReplaced.WithLabelValues("BINANCE", "ETH", "BUY").Inc()
	OrderErrors.WithLabelValues("BINANCE", "ETH", "Transient").Inc()
	WebhooksReceived.WithLabelValues("accepted").Inc()
}
