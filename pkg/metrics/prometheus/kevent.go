package prometheus

import (
	"time"

	"github.com/marmos91/wcstore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// keventMetrics is the Prometheus implementation of metrics.KeventMetrics.
type keventMetrics struct {
	registrations *prometheus.CounterVec
	scans         prometheus.Counter
	scanEvents    prometheus.Histogram
	scanDuration  prometheus.Histogram
	fluxWaits     prometheus.Counter
	timers        prometheus.Gauge
}

// NewKeventMetrics creates the event multiplexer collectors on the active
// registry. Returns nil if metrics are not enabled.
func NewKeventMetrics() metrics.KeventMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if m, ok := keventsCache[reg]; ok {
		return m
	}

	m := &keventMetrics{
		registrations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wcstore_kevent_registrations_total",
				Help: "Total number of register calls by filter, action and result",
			},
			[]string{"filter", "action", "result"},
		),
		scans: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "wcstore_kevent_scans_total",
				Help: "Total number of completed scans",
			},
		),
		scanEvents: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wcstore_kevent_scan_events",
				Help:    "Distribution of events returned per scan",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		scanDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wcstore_kevent_scan_duration_milliseconds",
				Help:    "Duration of scans in milliseconds, including blocking time",
				Buckets: []float64{0.01, 0.1, 1, 10, 100, 1000, 10000},
			},
		),
		fluxWaits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "wcstore_kevent_flux_waits_total",
				Help: "Total number of waits on in-flux knotes",
			},
		),
		timers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "wcstore_kevent_outstanding_timers",
				Help: "Number of armed timer knotes",
			},
		),
	}
	keventsCache[reg] = m
	return m
}

func (m *keventMetrics) RecordRegistration(filter, action string, err error) {
	m.registrations.WithLabelValues(filter, action, result(err)).Inc()
}

func (m *keventMetrics) ObserveScan(events int, duration time.Duration) {
	m.scans.Inc()
	m.scanEvents.Observe(float64(events))
	m.scanDuration.Observe(millis(duration))
}

func (m *keventMetrics) RecordFluxWait() {
	m.fluxWaits.Inc()
}

func (m *keventMetrics) SetOutstandingTimers(n int64) {
	m.timers.Set(float64(n))
}
