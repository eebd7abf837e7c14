// Package traccar is the telemetry fetcher: an HTTP client for a
// Traccar-compatible GPS tracking server.
//
// It authenticates with basic credentials or a session token, retrieves
// device and position snapshots, and runs a bounded tri-state health probe
// (reachable, reachable-but-degraded, unreachable) that callers use to
// decide on demo-mode fallback.
package traccar
