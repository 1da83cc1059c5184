// Package metric provides Prometheus metrics for the server.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, request and connection metrics
//   - collector.go: collector exporting file cache statistics
//   - snapshot.go: status snapshot for the status endpoint
//
// Metrics are written in the Prometheus text format by WriteText, which the
// metrics endpoint serves over the server's own protocol engine.
package metric
