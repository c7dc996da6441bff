// Package otel mirrors examcore counters and gauges into an OpenTelemetry
// Meter.
//
// [NewExporter] declares one Float64 observable instrument per family from
// [examcore.MetricFamilies] and a single callback that reads
// [examcore.Engine.MetricsSnapshot] on each collection cycle, attaching the
// Prometheus labels as attributes.
//
// The caller owns the MeterProvider. The exporter never mutates the engine.
package otel
