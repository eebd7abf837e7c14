package dist

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/traverse-transit/fleet-sync/fleet"
	"github.com/traverse-transit/fleet-sync/observability"
	"github.com/traverse-transit/fleet-sync/store"
)

// BusCallback receives complete bus location snapshots for a filter.
type BusCallback func(buses []fleet.BusLocation)

// AggregateCallback receives complete route aggregate snapshots.
type AggregateCallback func(routes []fleet.RouteAggregate)

// Unsubscribe stops deliveries to one subscription. Safe to call more than
// once.
type Unsubscribe func()

// Distributor fans store contents out to any number of independent
// subscribers. Every delivery is a complete, internally consistent snapshot
// for the subscription's filter, never a partial diff. Each subscription
// owns its own store listener and goroutine.
type Distributor struct {
	st       store.Store
	logger   *slog.Logger
	allLimit int

	mu     sync.Mutex
	closed bool
	subs   map[string]Unsubscribe
}

// New creates a distributor over the shared store. allLimit bounds the
// "all buses" snapshot size.
func New(st store.Store, allLimit int, logger *slog.Logger) *Distributor {
	return &Distributor{
		st:       st,
		logger:   logger.With("component", "dist"),
		allLimit: allLimit,
		subs:     make(map[string]Unsubscribe),
	}
}

// SubscribeToRoute delivers the buses currently on one route, initially and
// then whenever they change.
func (d *Distributor) SubscribeToRoute(routeNumber string, cb BusCallback) Unsubscribe {
	return d.subscribeBuses(store.KindBusLocations, cb, func(ev store.ChangeEvent) bool {
		if len(ev.Routes) == 0 {
			return true
		}
		for _, r := range ev.Routes {
			if r == routeNumber {
				return true
			}
		}
		return false
	}, func(ctx context.Context) ([]fleet.BusLocation, error) {
		return d.st.BusLocationsByRoute(ctx, routeNumber)
	})
}

// SubscribeToAllBuses delivers the most recently updated buses across all
// routes, capped at the configured limit.
func (d *Distributor) SubscribeToAllBuses(cb BusCallback) Unsubscribe {
	return d.subscribeBuses(store.KindBusLocations, cb,
		func(store.ChangeEvent) bool { return true },
		func(ctx context.Context) ([]fleet.BusLocation, error) {
			return d.st.AllBusLocations(ctx, d.allLimit)
		})
}

// SubscribeToRouteAggregates delivers per-route rollup statistics.
func (d *Distributor) SubscribeToRouteAggregates(cb AggregateCallback) Unsubscribe {
	events, cancel := d.st.Subscribe(store.KindRouteAggregates)
	return d.run(cancel, events, func(store.ChangeEvent) bool { return true }, func(ctx context.Context) {
		aggs, err := d.st.RouteAggregates(ctx)
		if err != nil {
			d.logger.Warn("aggregate snapshot query failed", "error", err)
			return
		}
		cb(aggs)
	})
}

func (d *Distributor) subscribeBuses(kind store.ChangeKind, cb BusCallback,
	match func(store.ChangeEvent) bool,
	query func(context.Context) ([]fleet.BusLocation, error)) Unsubscribe {
	events, cancel := d.st.Subscribe(kind)
	return d.run(cancel, events, match, func(ctx context.Context) {
		buses, err := query(ctx)
		if err != nil {
			d.logger.Warn("bus snapshot query failed", "error", err)
			return
		}
		cb(buses)
	})
}

// run starts the delivery goroutine: one initial snapshot, then one per
// matching change event, until unsubscribed.
func (d *Distributor) run(cancelStore func(), events <-chan store.ChangeEvent,
	match func(store.ChangeEvent) bool, deliver func(context.Context)) Unsubscribe {
	id := uuid.NewString()
	ctx, cancelCtx := context.WithCancel(context.Background())

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancelStore()
		cancelCtx()
		return func() {}
	}
	observability.Subscribers.Inc()
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			cancelStore()
			cancelCtx()
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			observability.Subscribers.Dec()
		})
	}
	d.subs[id] = unsub
	d.mu.Unlock()

	go func() {
		deliver(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if match(ev) {
					deliver(ctx)
				}
			}
		}
	}()

	d.logger.Debug("subscription opened", "id", id)
	return unsub
}

// Close cancels every open subscription.
func (d *Distributor) Close() {
	d.mu.Lock()
	d.closed = true
	open := make([]Unsubscribe, 0, len(d.subs))
	for _, unsub := range d.subs {
		open = append(open, unsub)
	}
	d.mu.Unlock()
	for _, unsub := range open {
		unsub()
	}
}
