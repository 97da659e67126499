// Package observability provides an OpenTelemetry metrics extension for
// enrich. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for ticket creation, claims, failed attempts,
// completion, failure, and lease reclamation.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
