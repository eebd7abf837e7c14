package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/traverse-transit/fleet-sync/fleet"
)

// MemoryStore is an in-process Store with the same ordering, batching and
// notification semantics as the Redis implementation. It backs tests and
// store-less development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	buses      map[string]fleet.BusLocation
	aggregates map[string]fleet.RouteAggregate

	subMu  sync.Mutex
	subs   map[ChangeKind]map[int]chan ChangeEvent
	nextID int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buses:      make(map[string]fleet.BusLocation),
		aggregates: make(map[string]fleet.RouteAggregate),
		subs:       make(map[ChangeKind]map[int]chan ChangeEvent),
	}
}

func (s *MemoryStore) UpsertBusLocations(_ context.Context, locations []fleet.BusLocation) error {
	if len(locations) == 0 {
		return nil
	}
	if len(locations) > MaxWriteBatch {
		return &PersistenceError{Op: "upsert bus locations",
			Err: fmt.Errorf("batch of %d exceeds ceiling %d", len(locations), MaxWriteBatch)}
	}

	s.mu.Lock()
	touched := make(map[string]struct{})
	for _, loc := range locations {
		if existing, ok := s.buses[loc.ID]; ok && loc.Timestamp.Before(existing.Timestamp) {
			continue
		}
		s.buses[loc.ID] = loc
		touched[loc.RouteNumber] = struct{}{}
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: KindBusLocations, Routes: sortedKeys(touched)})
	return nil
}

func (s *MemoryStore) UpsertRouteAggregates(_ context.Context, aggregates []fleet.RouteAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}
	if len(aggregates) > MaxWriteBatch {
		return &PersistenceError{Op: "upsert route aggregates",
			Err: fmt.Errorf("batch of %d exceeds ceiling %d", len(aggregates), MaxWriteBatch)}
	}

	s.mu.Lock()
	routes := make([]string, 0, len(aggregates))
	for _, agg := range aggregates {
		s.aggregates[agg.RouteNumber] = agg
		routes = append(routes, agg.RouteNumber)
	}
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: KindRouteAggregates, Routes: routes})
	return nil
}

func (s *MemoryStore) GetBusLocation(_ context.Context, id string) (*fleet.BusLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.buses[id]
	if !ok {
		return nil, nil
	}
	out := loc
	return &out, nil
}

func (s *MemoryStore) BusLocationsByRoute(_ context.Context, routeNumber string) ([]fleet.BusLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locs := make([]fleet.BusLocation, 0)
	for _, loc := range s.buses {
		if loc.RouteNumber == routeNumber {
			locs = append(locs, loc)
		}
	}
	sortByUpdateDesc(locs)
	return locs, nil
}

func (s *MemoryStore) AllBusLocations(_ context.Context, limit int) ([]fleet.BusLocation, error) {
	s.mu.RLock()
	locs := make([]fleet.BusLocation, 0, len(s.buses))
	for _, loc := range s.buses {
		locs = append(locs, loc)
	}
	s.mu.RUnlock()

	sortByUpdateDesc(locs)
	if limit > 0 && len(locs) > limit {
		locs = locs[:limit]
	}
	return locs, nil
}

func (s *MemoryStore) RouteAggregates(_ context.Context) ([]fleet.RouteAggregate, error) {
	s.mu.RLock()
	aggs := make([]fleet.RouteAggregate, 0, len(s.aggregates))
	for _, agg := range s.aggregates {
		aggs = append(aggs, agg)
	}
	s.mu.RUnlock()

	sort.Slice(aggs, func(i, j int) bool {
		return aggs[i].LastUpdate.After(aggs[j].LastUpdate)
	})
	return aggs, nil
}

func (s *MemoryStore) PurgeSimulated(_ context.Context) (int, error) {
	s.mu.Lock()
	purged := 0
	for id, loc := range s.buses {
		if !loc.IsLiveData {
			delete(s.buses, id)
			purged++
		}
	}
	// Aggregates carry no live flag; drop any whose route has no buses
	// left so simulated-only routes do not outlive the purge.
	droppedAggs := 0
	if purged > 0 {
		remaining := make(map[string]struct{}, len(s.buses))
		for _, loc := range s.buses {
			remaining[loc.RouteNumber] = struct{}{}
		}
		for route := range s.aggregates {
			if _, ok := remaining[route]; !ok {
				delete(s.aggregates, route)
				droppedAggs++
			}
		}
	}
	s.mu.Unlock()

	if purged > 0 {
		s.notify(ChangeEvent{Kind: KindBusLocations})
	}
	if droppedAggs > 0 {
		s.notify(ChangeEvent{Kind: KindRouteAggregates})
	}
	return purged, nil
}

func (s *MemoryStore) Subscribe(kind ChangeKind) (<-chan ChangeEvent, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs[kind] == nil {
		s.subs[kind] = make(map[int]chan ChangeEvent)
	}
	id := s.nextID
	s.nextID++
	ch := make(chan ChangeEvent, 8)
	s.subs[kind][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[kind], id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) notify(ev ChangeEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs[ev.Kind] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func sortByUpdateDesc(locs []fleet.BusLocation) {
	sort.Slice(locs, func(i, j int) bool {
		return locs[i].LastUpdate.After(locs[j].LastUpdate)
	})
}
