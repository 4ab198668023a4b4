// Package metrics exposes Prometheus instrumentation for Alexander DocStore.
// All recording methods are safe to call on a nil *Metrics, which disables
// collection without forcing callers to branch.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docstore"

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upload pipeline
	UploadsTotal *prometheus.CounterVec
	UploadBytes  prometheus.Counter

	// Chunk store
	ChunksWritten     prometheus.Counter
	ChunkBytesStored  prometheus.Counter
	ChunksRead        prometheus.Counter
	BlobCleanupFailed prometheus.Counter

	// Garbage collection
	GCRunsTotal    prometheus.Counter
	GCBlobsDeleted prometheus.Counter
	GCBytesFreed   prometheus.Counter
	GCDuration     prometheus.Histogram
	GCLastRunTime  prometheus.Gauge
	GCOrphanBlobs  prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "total",
			Help:      "Upload pipeline runs by final state.",
		}, []string{"state"}),

		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes accepted by committed uploads.",
		}),

		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "written_total",
			Help:      "Chunks persisted to the backend.",
		}),

		ChunkBytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "stored_bytes_total",
			Help:      "Encoded chunk bytes persisted to the backend.",
		}),

		ChunksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunks",
			Name:      "read_total",
			Help:      "Chunks streamed from the backend.",
		}),

		BlobCleanupFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blobs",
			Name:      "cleanup_failures_total",
			Help:      "Best-effort blob deletions that failed.",
		}),

		GCRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "runs_total",
			Help:      "Completed garbage collection runs.",
		}),

		GCBlobsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "blobs_deleted_total",
			Help:      "Unreferenced blobs removed by garbage collection.",
		}),

		GCBytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "bytes_freed_total",
			Help:      "Blob bytes freed by garbage collection.",
		}),

		GCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "duration_seconds",
			Help:      "Garbage collection run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),

		GCLastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last garbage collection run.",
		}),

		GCOrphanBlobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "orphan_blobs",
			Help:      "Unreferenced blobs found by the last run.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UploadsTotal,
		m.UploadBytes,
		m.ChunksWritten,
		m.ChunkBytesStored,
		m.ChunksRead,
		m.BlobCleanupFailed,
		m.GCRunsTotal,
		m.GCBlobsDeleted,
		m.GCBytesFreed,
		m.GCDuration,
		m.GCLastRunTime,
		m.GCOrphanBlobs,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUpload records the final state of an upload pipeline run.
func (m *Metrics) RecordUpload(state string, bytes int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(state).Inc()
	if bytes > 0 {
		m.UploadBytes.Add(float64(bytes))
	}
}

// RecordChunkWrite records one persisted chunk of encodedSize bytes.
func (m *Metrics) RecordChunkWrite(encodedSize int) {
	if m == nil {
		return
	}
	m.ChunksWritten.Inc()
	m.ChunkBytesStored.Add(float64(encodedSize))
}

// RecordChunkRead records one streamed chunk.
func (m *Metrics) RecordChunkRead() {
	if m == nil {
		return
	}
	m.ChunksRead.Inc()
}

// RecordCleanupFailure records a failed best-effort blob deletion.
func (m *Metrics) RecordCleanupFailure() {
	if m == nil {
		return
	}
	m.BlobCleanupFailed.Inc()
}

// RecordGCRun records a completed garbage collection run.
func (m *Metrics) RecordGCRun(seconds float64, blobsDeleted int, bytesFreed int64, orphans int) {
	if m == nil {
		return
	}
	m.GCRunsTotal.Inc()
	m.GCDuration.Observe(seconds)
	m.GCBlobsDeleted.Add(float64(blobsDeleted))
	m.GCBytesFreed.Add(float64(bytesFreed))
	m.GCOrphanBlobs.Set(float64(orphans))
	m.GCLastRunTime.SetToCurrentTime()
}
