// Package routes is the route catalog collaborator. The full catalog is a
// precomputed external dataset; this package embeds the subset covering the
// pilot fleet and tracks the bus counts the sync engine observes per route.
package routes
