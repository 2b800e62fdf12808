// Package prometheus exposes goRenew engine metrics as a prometheus.Collector.
//
// Register [NewPrometheusExporter] with any registry, or mount its Handler, which serves
// the collector alone. Counters are named gorenew_*_total; validation and renewal latency
// are the histograms gorenew_validate_latency_seconds and gorenew_refresh_latency_seconds.
package prometheus
