package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goRenew.MetricsSnapshot
	AuditDropped() uint64
}

// latency is one engine histogram published as a cumulative "_bucket" counter with an "le"
// attribute per bound and a "_count" counter.
type latency struct {
	id      goRenew.MetricID
	buckets metric.Int64ObservableCounter
	count   metric.Int64ObservableCounter
}

// OTelExporter publishes engine counters as observable instruments. The engine keeps
// pre-bucketed latency counts, not samples, so histograms are exposed in the Prometheus
// bucket layout rather than as OTel histograms.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[goRenew.MetricID]metric.Int64ObservableCounter
	latencies    []latency
	auditDropped metric.Int64ObservableCounter
	leSets       [internaldefs.BucketCount]metric.MeasurementOption
}

// NewOTelExporter registers instruments for engine on meter.
func NewOTelExporter(meter metric.Meter, engine *goRenew.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments for any snapshot source. Each collection
// takes one snapshot.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[goRenew.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	for i := range e.leSets {
		e.leSets[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", leLabel(i))))
	}

	var observables []metric.Observable
	counter := func(name, help string) (metric.Int64ObservableCounter, error) {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("otel: instrument %s: %w", name, err)
		}
		observables = append(observables, ins)
		return ins, nil
	}

	for _, def := range internaldefs.CounterDefs {
		ins, err := counter(def.Name, def.Help)
		if err != nil {
			return nil, err
		}
		e.counters[def.ID] = ins
	}
	for _, def := range internaldefs.HistogramDefs {
		l := latency{id: def.ID}
		var err error
		if l.buckets, err = counter(def.Name+"_bucket", def.Help+" Cumulative count per upper bound."); err != nil {
			return nil, err
		}
		if l.count, err = counter(def.Name+"_count", def.Help+" Sample count."); err != nil {
			return nil, err
		}
		e.latencies = append(e.latencies, l)
	}
	dropped, err := counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp)
	if err != nil {
		return nil, err
	}
	e.auditDropped = dropped

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}
	for _, l := range e.latencies {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, n := range cum {
			o.ObserveInt64(l.buckets, int64(n), e.leSets[i])
		}
		o.ObserveInt64(l.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func leLabel(i int) string {
	if i >= len(internaldefs.HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'g', -1, 64)
}

// Close unregisters the callback. The instruments stay registered with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
