package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch operation labels.
const (
	operationPropagate = "propagate"
	operationRollback  = "rollback"
	operationMutate    = "toggle_mutate"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the
// snapshot cache and the versioning engine.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	versionsCommitted prometheus.Counter
	assignmentsMoved  *prometheus.CounterVec
	batchFailures     *prometheus.CounterVec
	writeConflicts    *prometheus.CounterVec
	togglesMutated    prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	versionsCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "template_versions_committed_total",
		Help: "Template versions appended",
	})

	assignmentsMoved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "template_assignments_moved_total",
		Help: "Assignments whose version pointer was moved",
	}, []string{"operation"})

	batchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "template_batch_failures_total",
		Help: "Per-assignment failures during batch passes",
	}, []string{"operation"})

	writeConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_write_conflicts_total",
		Help: "Conditional assignment writes that lost a race",
	}, []string{"operation"})

	togglesMutated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toggle_items_mutated_total",
		Help: "Toggle items flipped by batch mutation",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		versionsCommitted, assignmentsMoved, batchFailures, writeConflicts, togglesMutated, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		versionsCommitted: versionsCommitted,
		assignmentsMoved:  assignmentsMoved,
		batchFailures:     batchFailures,
		writeConflicts:    writeConflicts,
		togglesMutated:    togglesMutated,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordVersionCommitted counts an appended snapshot.
func (m *MetricsService) RecordVersionCommitted() {
	if m == nil {
		return
	}
	m.versionsCommitted.Inc()
}

// RecordBatch adds the outcome counts of one batch pass.
func (m *MetricsService) RecordBatch(operation string, moved, failed int) {
	if m == nil {
		return
	}
	if moved > 0 {
		m.assignmentsMoved.WithLabelValues(operation).Add(float64(moved))
	}
	if failed > 0 {
		m.batchFailures.WithLabelValues(operation).Add(float64(failed))
	}
}

// RecordWriteConflict counts a lost conditional write.
func (m *MetricsService) RecordWriteConflict(operation string) {
	if m == nil {
		return
	}
	m.writeConflicts.WithLabelValues(operation).Inc()
}

// RecordTogglesMutated counts flipped toggle items.
func (m *MetricsService) RecordTogglesMutated(items int) {
	if m == nil || items <= 0 {
		return
	}
	m.togglesMutated.Add(float64(items))
}
