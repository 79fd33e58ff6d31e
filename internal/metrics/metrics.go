// Package metrics exposes Prometheus collectors for report parsing, the
// report repository, uploads and the latest-report cache.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the collectors on a private registry so tests and multiple
// servers in one process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	reportsParsed *prometheus.CounterVec
	reportItems   prometheus.Histogram
	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	uploadsTotal  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	activeUploads prometheus.Gauge
}

// New creates and registers all collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		reportsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_reports_parsed_total",
				Help: "Price sheets parsed, by result",
			},
			[]string{"status"},
		),
		reportItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketboard_report_items",
			Help:    "Number of items in each parsed report",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1 to 8192
		}),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_store_operations_total",
				Help: "Report repository operations, by operation and result",
			},
			[]string{"operation", "status"},
		),
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketboard_store_operation_duration_seconds",
				Help:    "Time taken by report repository operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"operation"},
		),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_uploads_total",
				Help: "CSV uploads received, by result",
			},
			[]string{"status"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_latest_cache_lookups_total",
				Help: "Latest-report cache lookups, by result",
			},
			[]string{"result"}, // hit, miss
		),
		activeUploads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketboard_uploads_active",
			Help: "Uploads currently holding a processing slot",
		}),
	}

	m.registry = prometheus.NewRegistry()

	collectors := []prometheus.Collector{
		m.reportsParsed, m.reportItems, m.storeOps, m.storeDuration,
		m.uploadsTotal, m.cacheLookups, m.activeUploads,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// ObserveParse records one parse attempt and, on success, its item count.
func (m *Metrics) ObserveParse(items int, err error) {
	if err != nil {
		m.reportsParsed.WithLabelValues(StatusError).Inc()
		return
	}
	m.reportsParsed.WithLabelValues(StatusSuccess).Inc()
	m.reportItems.Observe(float64(items))
}

// ObserveStoreOp records a repository call that started at start.
func (m *Metrics) ObserveStoreOp(op string, start time.Time, err error) {
	m.storeOps.WithLabelValues(op, statusOf(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveUpload records the outcome of one upload request.
func (m *Metrics) ObserveUpload(err error) {
	m.uploadsTotal.WithLabelValues(statusOf(err)).Inc()
}

// UploadStarted and UploadFinished track slot usage.
func (m *Metrics) UploadStarted()  { m.activeUploads.Inc() }
func (m *Metrics) UploadFinished() { m.activeUploads.Dec() }

// ObserveCache records a latest-report cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
