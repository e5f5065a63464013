package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "friendmap/internal/replica"

// Tracer returns the tracer replicas use for tick and merge spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Instruments are the counters a replica updates.
type Instruments struct {
	Ticks    metric.Int64Counter
	Received metric.Int64Counter
	Matched  metric.Int64Counter
	Lagged   metric.Int64Counter
}

// NewInstruments creates the replica counters on meter. A nil meter uses the
// global meter provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	var (
		in  Instruments
		err error
	)
	if in.Ticks, err = meter.Int64Counter("friendmap.replica.ticks",
		metric.WithDescription("Mutations applied and broadcast")); err != nil {
		return nil, err
	}
	if in.Received, err = meter.Int64Counter("friendmap.replica.received",
		metric.WithDescription("Snapshots received from other replicas")); err != nil {
		return nil, err
	}
	if in.Matched, err = meter.Int64Counter("friendmap.replica.matched",
		metric.WithDescription("Received snapshots that left local state unchanged")); err != nil {
		return nil, err
	}
	if in.Lagged, err = meter.Int64Counter("friendmap.replica.lagged",
		metric.WithDescription("Snapshots dropped because the backlog was full")); err != nil {
		return nil, err
	}
	return &in, nil
}
