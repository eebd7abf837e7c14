// Package observability provides the process logger and Prometheus metrics
// for the synchronization core.
package observability
