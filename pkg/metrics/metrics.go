// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zynpay"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ExchangeRateResolutions counts which tier answered each rate lookup.
	ExchangeRateResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exchange_rate_resolutions_total",
		Help:      "Exchange rate lookups by symbol and winning source.",
	}, []string{"symbol", "source"})

	PriceTierFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_tier_failures_total",
		Help:      "Failed price tier attempts.",
	}, []string{"source"})

	LedgerScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_scan_duration_seconds",
		Help:      "Time to scan payment events for one account.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"chain_id", "result"})

	PaymentActionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_action_transitions_total",
		Help:      "Payment action state transitions by kind.",
	}, []string{"kind", "state"})

	ReconciliationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliation_outcomes_total",
		Help:      "Backend reconciliation attempts by record kind and outcome.",
	}, []string{"kind", "outcome"})

	OpenReconciliations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_reconciliations",
		Help:      "Settlements paid on-chain but not yet recorded by the backend.",
	})

	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections",
		Help:      "Database pool connections by state.",
	}, []string{"state"})
)
