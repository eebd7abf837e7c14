// Package api exposes the synchronization core over HTTP: health and
// connection probes, force-sync, snapshot and server-sent-event views of
// the fleet, a GTFS-RT vehicle positions feed and Prometheus metrics.
package api
