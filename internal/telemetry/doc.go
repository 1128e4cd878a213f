// Package telemetry configures OpenTelemetry tracing and metrics for taskd.
//
// New installs global tracer and meter providers exporting over OTLP (gRPC
// or HTTP). Packages obtain instruments through otel.Tracer and otel.Meter,
// so a disabled Telemetry leaves the no-op globals in place.
//
// Tests use NewTestTelemetry, which records spans in memory and collects
// metrics on demand through a manual reader.
package telemetry
