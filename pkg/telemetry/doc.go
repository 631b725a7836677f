// Package telemetry groups the engine's observability support.
//
// Subpackages:
//
//   - logging: slog construction from config, credential redaction, and
//     request/actor context propagation for approval and ingest paths
//   - health: liveness and readiness probes served next to /metrics
//
// Prometheus collectors live with the code they measure; see
// engine.NewMetrics.
package telemetry
