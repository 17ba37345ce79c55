// Package telemetry sets up the OpenTelemetry meter provider.
//
// When enabled, metrics are exported over OTLP/HTTP on a periodic reader.
// When disabled, Meter falls back to the global (no-op) provider so
// instruments can be created unconditionally.
package telemetry
