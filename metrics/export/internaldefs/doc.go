// Package internaldefs holds the metric names and bucket bounds shared by the
// Prometheus and OTel exporters, so that both publish identical series.
//
// Bucket bounds mirror the engine's in-process histogram: 0.5ms, 1ms, 2.5ms, 5ms, 10ms,
// 25ms, 100ms and +Inf.
package internaldefs
