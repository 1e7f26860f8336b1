// FILE: metrics.go
// Package metrics exposes the executor's Prometheus metrics: orders placed
// and filled, webhook activity, portfolio holding weights, and worker state.
// Registered once in init() and served at /metrics by the HTTP API.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_placed_total",
			Help: "Limit orders placed, by exchange, asset and side.",
		},
		[]string{"exchange", "asset", "side"},
	)

	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_filled_total",
			Help: "Limit orders that reached a closed (fully filled) state.",
		},
		[]string{"exchange", "asset", "side"},
	)

	OrdersReplaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_replaced_total",
			Help: "Times a resting order was cancelled and re-priced against a moved book.",
		},
		[]string{"exchange", "asset", "side"},
	)

	OrderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_order_errors_total",
			Help: "Exchange errors encountered while placing orders, by kind.",
		},
		[]string{"exchange", "asset", "kind"},
	)

	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_webhooks_received_total",
			Help: "Webhook requests received, by outcome (accepted|unauthorized|invalid).",
		},
		[]string{"outcome"},
	)

	WorkersRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "executor_workers_running",
			Help: "Whether a rebalancing worker is currently active for an asset (1) or not (0).",
		},
		[]string{"exchange", "asset"},
	)

	HoldingWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "executor_holding_weight",
			Help: "Current fraction of base-asset-denominated portfolio value held in an asset.",
		},
		[]string{"exchange", "asset"},
	)

	PortfolioValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "executor_portfolio_value_base",
			Help: "Total portfolio value denominated in the exchange's base asset.",
		},
		[]string{"exchange"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		OrdersFilled,
		OrdersReplaced,
		OrderErrors,
		WebhooksReceived,
		WorkersRunning,
		HoldingWeight,
		PortfolioValue,
	)
}

// SetWorkerRunning records whether asset currently has an active worker.
func SetWorkerRunning(exchange, asset string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	WorkersRunning.WithLabelValues(exchange, asset).Set(v)
}
