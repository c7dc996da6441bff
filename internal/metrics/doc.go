// Package metrics owns the Prometheus collectors shared by the coordination
// components. A nil *Metrics is valid and records nothing.
//
// # Architecture
//
// Every collector is registered twice: on the caller's registerer for
// scraping, and on a private registry that backs [Metrics.Snapshot] so the
// OpenTelemetry exporter can read values without scraping.
//
// # What this package must NOT do
//
//   - Import examcore or any sibling package.
package metrics
