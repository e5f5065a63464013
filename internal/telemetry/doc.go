// Package telemetry wires OpenTelemetry tracing and the replica metrics.
//
// Tracing is opt-in through FRIENDMAP_OTEL_ENDPOINT. Without it spans and
// counters go to the global no-op providers.
package telemetry
