package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/stablemem/internal/core/domain"
)

const namespace = "stablemem"

// Registry holds all application metrics.
//
// All methods are safe on a nil *Registry so components can run without
// metrics in tests.
type Registry struct {
	registry *prometheus.Registry

	// Engine operations
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Store and snapshot
	StoreEntries          prometheus.Gauge
	StoreBytes            prometheus.Gauge
	SnapshotBytes         prometheus.Gauge
	SnapshotWriteDuration prometheus.Histogram

	// Streaming
	StreamBytes *prometheus.CounterVec

	// Transport requests
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and result code",
		}, []string{"op", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		StoreEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_entries",
			Help:      "Number of blobs in the keyed blob store",
		}),
		StoreBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_bytes",
			Help:      "Total size of blobs in the keyed blob store",
		}),
		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes",
			Help:      "Size of the last snapshot envelope written or read",
		}),
		SnapshotWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_write_duration_seconds",
			Help:      "Time to encode and stage a snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		StreamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Raw stable memory bytes streamed by direction",
		}, []string{"direction"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Transport requests by protocol, method and status",
		}, []string{"protocol", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Transport request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol", "method"}),
	}

	reg.MustRegister(
		r.OperationsTotal,
		r.OperationDuration,
		r.StoreEntries,
		r.StoreBytes,
		r.SnapshotBytes,
		r.SnapshotWriteDuration,
		r.StreamBytes,
		r.RequestsTotal,
		r.RequestDuration,
	)
	return r
}

// Registerer exposes the underlying registry for component metrics.
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ResultLabel maps an operation error to a low-cardinality label value.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := domain.GetErrorCode(err); code != "" {
		return code
	}
	return "error"
}

// ObserveOperation records one engine operation.
func (r *Registry) ObserveOperation(op string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(op, ResultLabel(err)).Inc()
	r.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetStore records the size of the keyed blob store.
func (r *Registry) SetStore(entries int, bytes uint64) {
	if r == nil {
		return
	}
	r.StoreEntries.Set(float64(entries))
	r.StoreBytes.Set(float64(bytes))
}

// SetSnapshotBytes records the size of the last snapshot envelope.
func (r *Registry) SetSnapshotBytes(n uint64) {
	if r == nil {
		return
	}
	r.SnapshotBytes.Set(float64(n))
}

// ObserveSnapshotWriteTime records how long a snapshot took, in seconds.
func (r *Registry) ObserveSnapshotWriteTime(seconds float64) {
	if r == nil {
		return
	}
	r.SnapshotWriteDuration.Observe(seconds)
}

// AddStreamBytes counts streamed bytes; direction is "backup" or "restore".
func (r *Registry) AddStreamBytes(direction string, n int) {
	if r == nil {
		return
	}
	r.StreamBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordRequest counts a transport request.
func (r *Registry) RecordRequest(protocol, method, status string) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(protocol, method, status).Inc()
}

// ObserveRequestDuration records transport latency in seconds.
func (r *Registry) ObserveRequestDuration(protocol, method string, seconds float64) {
	if r == nil {
		return
	}
	r.RequestDuration.WithLabelValues(protocol, method).Observe(seconds)
}
