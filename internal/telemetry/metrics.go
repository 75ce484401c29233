package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter and histogram names below are an external contract; dashboards
// and the experiment harness scrape them by name.
var (
	PaymentsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_received_total",
		Help: "Payments received by the intake API.",
	})

	PaymentsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_processed_total",
		Help: "Payments newly accepted by intake, or completed or rejected by the worker.",
	})

	IdempotencyReplay = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replay_total",
		Help: "Requests answered from a stored idempotency response.",
	})

	OptimisticLockConflict = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optimistic_lock_conflict_total",
		Help: "Account updates lost to a concurrent version bump.",
	})

	RequestLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payments_request_latency_ms",
		Help:    "Latency of the create-payment endpoint in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000},
	})

	OutboxRetry = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_retry_total",
		Help: "Outbox events rescheduled after a transient failure.",
	})

	LedgerImbalance = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_imbalance_total",
		Help: "Reconciliation passes that found a debit/credit imbalance.",
	})

	NegativeBalanceDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "negative_balance_detected_total",
		Help: "Reconciliation passes that found a negative balance.",
	})

	InvariantViolation = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invariant_violation_total",
		Help: "Outbox events dead-lettered for an invariant violation.",
	})
)
