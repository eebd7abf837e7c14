// Package dist is the distribution layer: read-only, push-subscribed
// access to the shared store for any number of concurrent consumers.
//
// Subscriptions filter by route, all buses (bounded, most recent first) or
// route aggregates. Each subscribe call opens an independent store
// listener; a reference-counted shared listener per filter would cut
// resource use and remains an open improvement.
package dist
