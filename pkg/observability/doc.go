// Package observability provides structured logging, Prometheus metrics, and
// health probes for the service.
package observability
