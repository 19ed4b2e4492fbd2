// Package metrics exposes Prometheus instrumentation for the execution
// engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts child orders by symbol, side and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbot",
		Name:      "orders_total",
		Help:      "Child orders by symbol, side and outcome.",
	}, []string{"symbol", "side", "status"})

	// PlansStarted counts execution plans launched, by type.
	PlansStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbot",
		Name:      "plans_started_total",
		Help:      "Execution plans launched, by type.",
	}, []string{"type"})

	// PlansFinished counts execution plans reaching a terminal state.
	PlansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbot",
		Name:      "plans_finished_total",
		Help:      "Execution plans finished, by type and terminal status.",
	}, []string{"type", "status"})

	// PlansActive tracks currently running plans, by type.
	PlansActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orderbot",
		Name:      "plans_active",
		Help:      "Currently running execution plans, by type.",
	}, []string{"type"})

	// GatewayLatency observes exchange gateway call latency.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orderbot",
		Name:      "gateway_latency_seconds",
		Help:      "Exchange gateway call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// GatewayErrors counts gateway failures by error code.
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbot",
		Name:      "gateway_errors_total",
		Help:      "Gateway failures by error code.",
	}, []string{"code"})
)
