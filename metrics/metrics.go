package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "redlock"

var (
	// AcquireTotal counts Acquire calls by outcome (success/failure).
	AcquireTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acquire_total",
		Help:      "Total number of lock acquisitions",
	}, []string{"status"})
	// AcquireAttempts counts individual quorum rounds, retries included.
	AcquireAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acquire_attempts_total",
		Help:      "Total number of quorum attempts made while acquiring locks",
	})
	// AcquireDuration tracks the latency of Acquire, from 1ms to ~4s.
	AcquireDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "acquire_duration_seconds",
		Help:      "Time taken to acquire a lock, retries included",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
	})
	// ReleaseTotal counts Release calls by outcome (success/unreachable).
	ReleaseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "release_total",
		Help:      "Total number of lock releases",
	}, []string{"status"})
	// NodeOps counts primitive calls against nodes.
	NodeOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_ops_total",
		Help:      "Total number of node operations by operation and result",
	}, []string{"op", "result"})
)

const (
	StatusSuccess     = "success"
	StatusFailure     = "failure"
	StatusUnreachable = "unreachable"

	OpSetIfAbsent      = "set_if_absent"
	OpCompareAndDelete = "compare_and_delete"

	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers the lock manager collectors on the provided registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(AcquireTotal, AcquireAttempts, AcquireDuration, ReleaseTotal, NodeOps)
}

// ObserveNodeOp records the outcome of one node primitive call.
func ObserveNodeOp(op string, ok bool, err error) {
	result := ResultOK
	switch {
	case err != nil:
		result = ResultError
	case !ok:
		result = ResultRejected
	}
	NodeOps.WithLabelValues(op, result).Inc()
}
