// Package metric provides Prometheus metrics for stablemem.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry and HTTP handler
//   - collector.go: memory header collector read on every scrape
//
// Metrics include:
//
//   - Engine operation counters and latency histograms
//   - Store size and snapshot size gauges
//   - Streamed bytes counters
//   - Transport request counters
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
