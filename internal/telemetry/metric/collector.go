package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/stablemem/internal/core/domain"
)

// HeaderSource returns the current memory header.
type HeaderSource func() domain.MemoryHeader

// Collector exports the memory header of both tiers on every scrape.
type Collector struct {
	source HeaderSource

	heapPages   *prometheus.Desc
	stablePages *prometheus.Desc
	totalBytes  *prometheus.Desc
}

// NewCollector creates a memory header collector.
func NewCollector(source HeaderSource) *Collector {
	return &Collector{
		source: source,
		heapPages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "heap_pages"),
			"Working memory in 64 KiB pages", nil, nil),
		stablePages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "stable_pages"),
			"Stable memory in 64 KiB pages", nil, nil),
		totalBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "total_bytes"),
			"Working plus stable memory in bytes", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.heapPages
	ch <- c.stablePages
	ch <- c.totalBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	h := c.source()
	ch <- prometheus.MustNewConstMetric(c.heapPages, prometheus.GaugeValue, float64(h.HeapPages))
	ch <- prometheus.MustNewConstMetric(c.stablePages, prometheus.GaugeValue, float64(h.StablePages))
	ch <- prometheus.MustNewConstMetric(c.totalBytes, prometheus.GaugeValue, float64(h.All))
}

// RegisterHeader registers a memory header collector with r.
func (r *Registry) RegisterHeader(source HeaderSource) error {
	if r == nil {
		return nil
	}
	return r.registry.Register(NewCollector(source))
}
