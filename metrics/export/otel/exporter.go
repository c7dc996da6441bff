package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/examcore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() ([]examcore.MetricSample, error)
}

type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[string]metric.Float64ObservableCounter
	gauges       map[string]metric.Float64ObservableGauge
}

// NewExporter registers instruments for engine on meter.
func NewExporter(meter metric.Meter, engine *examcore.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	families := examcore.MetricFamilies()
	exporter := &Exporter{
		source:   source,
		counters: make(map[string]metric.Float64ObservableCounter, len(families)),
		gauges:   make(map[string]metric.Float64ObservableGauge),
	}
	observables := make([]metric.Observable, 0, len(families))

	for _, f := range families {
		if f.Gauge {
			ins, err := meter.Float64ObservableGauge(f.Name, metric.WithDescription(f.Help))
			if err != nil {
				return nil, fmt.Errorf("create observable gauge %s: %w", f.Name, err)
			}
			exporter.gauges[f.Name] = ins
			observables = append(observables, ins)
			continue
		}
		ins, err := meter.Float64ObservableCounter(f.Name, metric.WithDescription(f.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", f.Name, err)
		}
		exporter.counters[f.Name] = ins
		observables = append(observables, ins)
	}

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	samples, err := e.source.MetricsSnapshot()
	if err != nil {
		return err
	}
	for _, s := range samples {
		opt := metric.WithAttributes(labelAttrs(s.Labels)...)
		if ins, ok := e.counters[s.Name]; ok {
			observer.ObserveFloat64(ins, s.Value, opt)
		} else if ins, ok := e.gauges[s.Name]; ok {
			observer.ObserveFloat64(ins, s.Value, opt)
		}
	}
	return nil
}

func labelAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
