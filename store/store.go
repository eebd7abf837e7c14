package store

import (
	"context"
	"fmt"

	"github.com/traverse-transit/fleet-sync/fleet"
)

// MaxWriteBatch is the store-imposed ceiling on writes per commit. Callers
// chunk larger batches and commit the chunks sequentially.
const MaxWriteBatch = 500

// ChangeKind identifies which collection a change notification covers.
type ChangeKind string

const (
	KindBusLocations    ChangeKind = "busLocations"
	KindRouteAggregates ChangeKind = "routeAggregates"
)

// ChangeEvent is pushed to subscribers after a commit. Routes lists the
// route numbers touched by the commit; an empty list means the change may
// affect any route (e.g. a purge).
type ChangeEvent struct {
	Kind   ChangeKind
	Routes []string
}

// PersistenceError wraps a failed store write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the shared real-time document store. The sync engine is its only
// writer; the distribution layer reads and subscribes.
//
// Upserts are idempotent and keyed by record id. An upsert carrying an
// older fix time than the stored record for the same id is discarded, so a
// record's fix time only ever advances.
type Store interface {
	UpsertBusLocations(ctx context.Context, locations []fleet.BusLocation) error
	UpsertRouteAggregates(ctx context.Context, aggregates []fleet.RouteAggregate) error

	GetBusLocation(ctx context.Context, id string) (*fleet.BusLocation, error)
	BusLocationsByRoute(ctx context.Context, routeNumber string) ([]fleet.BusLocation, error)
	// AllBusLocations returns at most limit records ordered by most
	// recent update first. limit <= 0 means no limit.
	AllBusLocations(ctx context.Context, limit int) ([]fleet.BusLocation, error)
	RouteAggregates(ctx context.Context) ([]fleet.RouteAggregate, error)

	// PurgeSimulated deletes every record flagged as non-live and
	// returns how many were removed.
	PurgeSimulated(ctx context.Context) (int, error)

	// Subscribe registers for change notifications of one kind. The
	// returned cancel func stops delivery and is safe to call more than
	// once. Slow consumers may have events coalesced, never reordered.
	Subscribe(kind ChangeKind) (<-chan ChangeEvent, func())

	Close() error
}
