// Package fleet holds the domain model of the synchronization core and the
// pure conversion logic that turns raw telemetry into enriched records.
//
// The main entry point is Convert, which maps a (Device, Position) pair
// from the telemetry source into a BusLocation, resolving route metadata
// through a RouteLookup collaborator. ComputeRouteAggregates rolls a tick's
// batch up into per-route statistics. Everything in this package is a pure
// function of its inputs so the conversion rules can be tested without
// clocks, stores or networks.
package fleet
