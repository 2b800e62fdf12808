// Package otel publishes goRenew engine metrics through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter. Each latency
// histogram becomes a "_bucket" counter carrying an "le" attribute per upper bound, plus a
// "_count" counter, matching the layout of the Prometheus exporter. A single callback reads
// [goRenew.Engine.MetricsSnapshot] on each collection cycle. Callers own the MeterProvider.
package otel
