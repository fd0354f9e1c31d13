package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlworker_operations_total",
			Help: "Total number of operations by kind and final status.",
		},
		[]string{"kind", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlworker_operation_duration_seconds",
			Help:    "Operation execution duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"kind"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlworker_queue_depth",
			Help: "Number of operations waiting for a worker.",
		},
	)

	queueOverCapacity = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlworker_queue_over_capacity_total",
			Help: "Pushes that left the queue deeper than its advisory capacity.",
		},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlworker_active_workers",
			Help: "Number of running worker goroutines.",
		},
	)

	transactionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlworker_transaction_retries_total",
			Help: "Transaction attempts replayed after a lock conflict.",
		},
	)

	transactionRetryExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlworker_transaction_retry_exhausted_total",
			Help: "Transactions abandoned after the deadlock retry window.",
		},
	)

	corruptedOperations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlworker_corrupted_operations_total",
			Help: "Invalid operation handles that stopped a worker.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		operationsTotal,
		operationDuration,
		queueDepth,
		queueOverCapacity,
		activeWorkers,
		transactionRetries,
		transactionRetryExhausted,
		corruptedOperations,
	)
}
