// Package store is the shared real-time document store between the sync
// engine (sole writer) and the distribution layer (reader/subscriber).
//
// The production implementation keeps one JSON document per Redis key,
// maintains update-ordered sorted-set indexes for bounded queries, commits
// batches through pipelines capped at MaxWriteBatch writes, and relays
// change notifications over Redis pub/sub. MemoryStore mirrors the same
// semantics in-process for tests.
package store
