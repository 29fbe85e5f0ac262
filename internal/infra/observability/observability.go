// Package observability holds the Prometheus metrics for the credit ledger.
// Counters and histograms are package-level promauto variables so every
// layer can record without threading a registry around.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// HTTPRequests counts handled requests by route and status class.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creditd",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests handled, by route pattern and status class.",
}, []string{"route", "status"})

// HTTPDuration observes request latency by route.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "creditd",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// ─── Auth Metrics ───────────────────────────────────────────────────────────

// AuthFailures counts rejected signed requests by reason.
var AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creditd",
	Subsystem: "auth",
	Name:      "failures_total",
	Help:      "Signed-request verification failures, by reason.",
}, []string{"reason"})

// RateLimited counts requests dropped by the advisory limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "creditd",
	Subsystem: "auth",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the advisory rate limiter.",
})

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerMovements counts completed balance movements by transaction type.
var LedgerMovements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creditd",
	Subsystem: "ledger",
	Name:      "movements_total",
	Help:      "Completed ledger movements, by transaction type.",
}, []string{"type"})

// LedgerCredits sums credit points moved by transaction type.
var LedgerCredits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "creditd",
	Subsystem: "ledger",
	Name:      "points_total",
	Help:      "Credit points moved through the ledger, by transaction type.",
}, []string{"type"})

// InsufficientBalance counts debits rejected at the balance floor.
var InsufficientBalance = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "creditd",
	Subsystem: "ledger",
	Name:      "insufficient_balance_total",
	Help:      "Debits rejected because the balance would go negative.",
})

// RecordMovement records one completed movement of amount points.
func RecordMovement(txType string, amount int64) {
	LedgerMovements.WithLabelValues(txType).Inc()
	LedgerCredits.WithLabelValues(txType).Add(float64(amount))
}
