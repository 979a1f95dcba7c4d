package internal

import (
	"context"
	"sync"
)

// Telemetry hooks for table resolution and availability lookups. The emitter
// is a no-op until one is registered, so the core carries no hard dependency
// on a metrics backend.

type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter registers a custom emitter function. Passing nil
// restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitResolutionLatency records how long a resolution pass took (milliseconds).
// name: "strata_resolution_latency_ms"
func EmitResolutionLatency(ctx context.Context, ms int64) {
	emit(ctx, MetricResolutionLatency, nil, ms)
}

// EmitTableBuilt counts a built physical table.
// name: "strata_tables_built_total" with label {"kind": "leaf"|"partition"|"metricUnion"}
func EmitTableBuilt(ctx context.Context, kind string) {
	emit(ctx, MetricTablesBuilt, map[string]string{"kind": kind}, int64(1))
}

// EmitAvailabilityLookup counts a metadata service call.
// name: "strata_availability_lookups_total" with labels {"source", "outcome": "hit"|"miss"|"error"|"rejected"}
func EmitAvailabilityLookup(ctx context.Context, source, outcome string) {
	emit(ctx, MetricAvailabilityLookups, map[string]string{"source": source, "outcome": outcome}, int64(1))
}

const (
	MetricResolutionLatency   = "strata_resolution_latency_ms"
	MetricTablesBuilt         = "strata_tables_built_total"
	MetricAvailabilityLookups = "strata_availability_lookups_total"
)
