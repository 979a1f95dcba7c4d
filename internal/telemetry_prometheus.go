package internal

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusTelemetry exposes the telemetry hooks as Prometheus collectors.
type PrometheusTelemetry struct {
	resolutionLatency   prometheus.Histogram
	tablesBuilt         *prometheus.CounterVec
	availabilityLookups *prometheus.CounterVec
}

// NewPrometheusTelemetry registers the collectors with reg under namespace.
// Collectors already registered by an earlier call are reused, so several
// catalogs in one process share the same series.
func NewPrometheusTelemetry(reg prometheus.Registerer, namespace string) (*PrometheusTelemetry, error) {
	latency, err := registerCollector(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "resolution_latency_ms",
		Help:      "Duration of physical table resolution passes in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}))
	if err != nil {
		return nil, err
	}
	built, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tables_built_total",
		Help:      "Physical tables built, by kind",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	lookups, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "availability_lookups_total",
		Help:      "Metadata service lookups, by source and outcome",
	}, []string{"source", "outcome"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusTelemetry{
		resolutionLatency:   latency,
		tablesBuilt:         built,
		availabilityLookups: lookups,
	}, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	var zero T
	return zero, err
}

// Emit is a TelemetryEmitter; unknown names are ignored.
func (p *PrometheusTelemetry) Emit(_ context.Context, name string, labels map[string]string, value any) {
	switch name {
	case MetricResolutionLatency:
		if ms, ok := value.(int64); ok {
			p.resolutionLatency.Observe(float64(ms))
		}
	case MetricTablesBuilt:
		p.tablesBuilt.WithLabelValues(labels["kind"]).Inc()
	case MetricAvailabilityLookups:
		p.availabilityLookups.WithLabelValues(labels["source"], labels["outcome"]).Inc()
	}
}
