// Package prometheus provides the Prometheus implementations of the
// interfaces in pkg/metrics. Import it for its side effects:
//
//	import _ "github.com/marmos91/wcstore/pkg/metrics/prometheus"
package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/wcstore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterWCMetricsConstructor(NewWCMetrics)
	metrics.RegisterKeventMetricsConstructor(NewKeventMetrics)
}

// Collectors are registered once per registry; later constructor calls
// against the same registry share them.
var (
	cacheMu      sync.Mutex
	wcCache      = map[*prometheus.Registry]*wcMetrics{}
	keventsCache = map[*prometheus.Registry]*keventMetrics{}
)

// wcMetrics is the Prometheus implementation of metrics.WCMetrics.
type wcMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	lockConflicts     prometheus.Counter
	workQueueDepth    prometheus.Gauge
	pristineOps       *prometheus.CounterVec
	pristineBytes     *prometheus.CounterVec
	pristineDuration  *prometheus.HistogramVec
}

// NewWCMetrics creates the working-copy collectors on the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewWCMetrics() metrics.WCMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if m, ok := wcCache[reg]; ok {
		return m
	}

	m := &wcMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wcstore_wc_operations_total",
				Help: "Total number of working-copy store operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "wcstore_wc_operation_duration_milliseconds",
				Help: "Duration of working-copy store operations in milliseconds",
				Buckets: []float64{
					0.1, // single-row reads
					0.5,
					1,
					5,
					10,
					50,
					100,
					500, // large recursive copies and reverts
					2000,
				},
			},
			[]string{"operation"},
		),
		lockConflicts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "wcstore_wc_lock_conflicts_total",
				Help: "Total number of refused working-copy lock requests",
			},
		),
		workQueueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "wcstore_wc_work_queue_depth",
				Help: "Number of pending work queue items",
			},
		),
		pristineOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wcstore_pristine_operations_total",
				Help: "Total number of pristine store operations by backend, operation and result",
			},
			[]string{"backend", "operation", "result"},
		),
		pristineBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "wcstore_pristine_bytes_total",
				Help: "Bytes moved through the pristine store",
			},
			[]string{"backend", "operation"},
		),
		pristineDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wcstore_pristine_duration_milliseconds",
				Help:    "Duration of pristine store operations in milliseconds",
				Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"backend", "operation"},
		),
	}
	wcCache[reg] = m
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func (m *wcMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operations.WithLabelValues(operation, result(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(millis(duration))
}

func (m *wcMetrics) RecordLockConflict() {
	m.lockConflicts.Inc()
}

func (m *wcMetrics) SetWorkQueueDepth(depth int) {
	m.workQueueDepth.Set(float64(depth))
}

func (m *wcMetrics) ObservePristine(backend, operation string, bytes int64, duration time.Duration, err error) {
	m.pristineOps.WithLabelValues(backend, operation, result(err)).Inc()
	if bytes > 0 {
		m.pristineBytes.WithLabelValues(backend, operation).Add(float64(bytes))
	}
	m.pristineDuration.WithLabelValues(backend, operation).Observe(millis(duration))
}
