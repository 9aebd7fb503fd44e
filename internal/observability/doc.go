// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, and the bounded per-session event log that the
// session monitor reads.
package observability
