// Package metrics provides observability for Meridian broker operations
// using Prometheus metrics.
//
// Pre-defined metrics cover the broker's operation lifecycle:
//
//	metrics.OperationsTotal.WithLabelValues("test", "postgresql", "success").Inc()
//	metrics.OperationLatency.WithLabelValues("metadata", "mysql").Observe(elapsed.Seconds())
//	metrics.FailuresTotal.WithLabelValues("test", "postgresql", "timeout").Inc()
//
// All metrics are registered on the default registry via promauto and are
// safe for concurrent use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts broker operations by operation, connector tag,
	// and outcome ("success" or "failure").
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_operations_total",
			Help: "Total broker operations by operation, connector tag, and outcome",
		},
		[]string{"operation", "connector", "outcome"},
	)

	// FailuresTotal counts failed broker operations by uniform error kind.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_failures_total",
			Help: "Failed broker operations by operation, connector tag, and error kind",
		},
		[]string{"operation", "connector", "kind"},
	)

	// RetryAttempts tracks the attempt count distribution per operation.
	RetryAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_operation_attempts",
			Help:    "Attempts consumed per broker operation",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"operation", "connector"},
	)

	// OperationLatency tracks end-to-end operation latency in seconds.
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_operation_latency_seconds",
			Help:    "End-to-end broker operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "connector"},
	)
)

// Timer measures elapsed time for an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveOperation records the outcome of one broker operation.
func ObserveOperation(operation, connector string, attempts int, elapsed time.Duration, errKind string) {
	outcome := "success"
	if errKind != "" {
		outcome = "failure"
		FailuresTotal.WithLabelValues(operation, connector, errKind).Inc()
	}
	OperationsTotal.WithLabelValues(operation, connector, outcome).Inc()
	RetryAttempts.WithLabelValues(operation, connector).Observe(float64(attempts))
	OperationLatency.WithLabelValues(operation, connector).Observe(elapsed.Seconds())
}
