package metrics

import "time"

// WCMetrics instruments the working-copy metadata store.
type WCMetrics interface {
	// ObserveOperation records one store operation and its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordLockConflict counts a refused working-copy lock.
	RecordLockConflict()

	// SetWorkQueueDepth records the number of pending work items.
	SetWorkQueueDepth(depth int)

	// ObservePristine records one pristine store operation.
	ObservePristine(backend, operation string, bytes int64, duration time.Duration, err error)
}

var newPrometheusWCMetrics func() WCMetrics

// RegisterWCMetricsConstructor registers the Prometheus implementation.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterWCMetricsConstructor(constructor func() WCMetrics) {
	newPrometheusWCMetrics = constructor
}

// NewWCMetrics returns a Prometheus-backed WCMetrics, or nil when metrics
// are disabled or no implementation is linked in.
func NewWCMetrics() WCMetrics {
	if !IsEnabled() || newPrometheusWCMetrics == nil {
		return nil
	}
	return newPrometheusWCMetrics()
}

// ObserveOperation records a store operation on m if non-nil.
func ObserveOperation(m WCMetrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// RecordLockConflict records a lock conflict on m if non-nil.
func RecordLockConflict(m WCMetrics) {
	if m != nil {
		m.RecordLockConflict()
	}
}

// SetWorkQueueDepth records the work queue depth on m if non-nil.
func SetWorkQueueDepth(m WCMetrics, depth int) {
	if m != nil {
		m.SetWorkQueueDepth(depth)
	}
}

// ObservePristine records a pristine store operation on m if non-nil.
func ObservePristine(m WCMetrics, backend, operation string, bytes int64, duration time.Duration, err error) {
	if m != nil {
		m.ObservePristine(backend, operation, bytes, duration, err)
	}
}
