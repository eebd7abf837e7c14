// Package feed exports the live fleet as a GTFS-Realtime VehiclePositions
// feed so standard transit tooling can consume it alongside the app's own
// subscription API.
package feed
