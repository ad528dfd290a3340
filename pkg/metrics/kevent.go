package metrics

import "time"

// KeventMetrics instruments the event multiplexer.
type KeventMetrics interface {
	// RecordRegistration counts a register call by filter and outcome.
	RecordRegistration(filter, action string, err error)

	// ObserveScan records one scan: how many events it returned and how long it took.
	ObserveScan(events int, duration time.Duration)

	// RecordFluxWait counts a wait on an in-flux knote.
	RecordFluxWait()

	// SetOutstandingTimers records the process-wide armed timer count.
	SetOutstandingTimers(n int64)
}

var newPrometheusKeventMetrics func() KeventMetrics

// RegisterKeventMetricsConstructor registers the Prometheus implementation.
func RegisterKeventMetricsConstructor(constructor func() KeventMetrics) {
	newPrometheusKeventMetrics = constructor
}

// NewKeventMetrics returns a Prometheus-backed KeventMetrics, or nil when
// metrics are disabled.
func NewKeventMetrics() KeventMetrics {
	if !IsEnabled() || newPrometheusKeventMetrics == nil {
		return nil
	}
	return newPrometheusKeventMetrics()
}

// RecordRegistration records a registration on m if non-nil.
func RecordRegistration(m KeventMetrics, filter, action string, err error) {
	if m != nil {
		m.RecordRegistration(filter, action, err)
	}
}

// ObserveScan records a scan on m if non-nil.
func ObserveScan(m KeventMetrics, events int, duration time.Duration) {
	if m != nil {
		m.ObserveScan(events, duration)
	}
}

// RecordFluxWait records a flux wait on m if non-nil.
func RecordFluxWait(m KeventMetrics) {
	if m != nil {
		m.RecordFluxWait()
	}
}

// SetOutstandingTimers records the timer count on m if non-nil.
func SetOutstandingTimers(m KeventMetrics, n int64) {
	if m != nil {
		m.SetOutstandingTimers(n)
	}
}
