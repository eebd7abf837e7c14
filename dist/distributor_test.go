package dist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/traverse-transit/fleet-sync/fleet"
	"github.com/traverse-transit/fleet-sync/store"
)

func newTestDistributor(t *testing.T, allLimit int) (*Distributor, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	d := New(st, allLimit, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(d.Close)
	return d, st
}

func seedBus(t *testing.T, st *store.MemoryStore, id, route string, updated time.Time) {
	t.Helper()
	err := st.UpsertBusLocations(context.Background(), []fleet.BusLocation{{
		ID:          id,
		RouteNumber: route,
		Timestamp:   updated,
		LastUpdate:  updated,
		Status:      fleet.StatusActive,
		IsLiveData:  true,
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func waitSnapshot(t *testing.T, ch <-chan []fleet.BusLocation) []fleet.BusLocation {
	t.Helper()
	select {
	case buses := <-ch:
		return buses
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

func TestRouteSubscriptionDeliversInitialSnapshot(t *testing.T) {
	d, st := newTestDistributor(t, 100)
	now := time.Now()
	seedBus(t, st, "138-001", "138", now)
	seedBus(t, st, "177-001", "177", now)

	snapshots := make(chan []fleet.BusLocation, 4)
	unsub := d.SubscribeToRoute("138", func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	defer unsub()

	got := waitSnapshot(t, snapshots)
	if len(got) != 1 || got[0].ID != "138-001" {
		t.Fatalf("initial snapshot = %+v", got)
	}
}

func TestRouteSubscriptionFollowsChanges(t *testing.T) {
	d, st := newTestDistributor(t, 100)
	now := time.Now()
	seedBus(t, st, "138-001", "138", now)

	snapshots := make(chan []fleet.BusLocation, 4)
	unsub := d.SubscribeToRoute("138", func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	defer unsub()
	waitSnapshot(t, snapshots)

	seedBus(t, st, "138-002", "138", now.Add(time.Second))

	got := waitSnapshot(t, snapshots)
	if len(got) != 2 {
		t.Fatalf("snapshot after change has %d buses", len(got))
	}
	// A delivery is always the full route fleet, never just the changed bus.
	ids := map[string]bool{}
	for _, b := range got {
		ids[b.ID] = true
	}
	if !ids["138-001"] || !ids["138-002"] {
		t.Errorf("snapshot missing buses: %v", ids)
	}
}

func TestRouteSubscriptionIgnoresOtherRoutes(t *testing.T) {
	d, st := newTestDistributor(t, 100)
	now := time.Now()
	seedBus(t, st, "138-001", "138", now)

	snapshots := make(chan []fleet.BusLocation, 4)
	unsub := d.SubscribeToRoute("138", func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	defer unsub()
	waitSnapshot(t, snapshots)

	seedBus(t, st, "177-001", "177", now.Add(time.Second))

	select {
	case got := <-snapshots:
		t.Fatalf("delivery for unrelated route: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAllBusesSubscriptionHonorsLimit(t *testing.T) {
	d, st := newTestDistributor(t, 2)
	base := time.Now()
	for i := 0; i < 4; i++ {
		seedBus(t, st, fmt.Sprintf("138-%03d", i), "138", base.Add(time.Duration(i)*time.Second))
	}

	snapshots := make(chan []fleet.BusLocation, 4)
	unsub := d.SubscribeToAllBuses(func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	defer unsub()

	got := waitSnapshot(t, snapshots)
	if len(got) != 2 {
		t.Fatalf("snapshot has %d buses, want limit 2", len(got))
	}
	if got[0].ID != "138-003" {
		t.Errorf("most recent bus is %q", got[0].ID)
	}
}

func TestAggregateSubscription(t *testing.T) {
	d, st := newTestDistributor(t, 100)
	err := st.UpsertRouteAggregates(context.Background(), []fleet.RouteAggregate{{
		RouteNumber: "138",
		TotalBuses:  3,
		ActiveBuses: 2,
	}})
	if err != nil {
		t.Fatal(err)
	}

	snapshots := make(chan []fleet.RouteAggregate, 4)
	unsub := d.SubscribeToRouteAggregates(func(routes []fleet.RouteAggregate) {
		snapshots <- routes
	})
	defer unsub()

	select {
	case got := <-snapshots:
		if len(got) != 1 || got[0].RouteNumber != "138" {
			t.Fatalf("aggregate snapshot = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no aggregate snapshot delivered")
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	d, st := newTestDistributor(t, 100)
	now := time.Now()
	seedBus(t, st, "138-001", "138", now)

	snapshots := make(chan []fleet.BusLocation, 4)
	unsub := d.SubscribeToRoute("138", func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	waitSnapshot(t, snapshots)

	unsub()
	unsub()

	seedBus(t, st, "138-002", "138", now.Add(time.Second))
	select {
	case got := <-snapshots:
		t.Fatalf("delivery after unsubscribe: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseCancelsSubscriptions(t *testing.T) {
	d, st := newTestDistributor(t, 100)
	now := time.Now()
	seedBus(t, st, "138-001", "138", now)

	snapshots := make(chan []fleet.BusLocation, 4)
	d.SubscribeToRoute("138", func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	waitSnapshot(t, snapshots)

	d.Close()

	// New subscriptions after Close are inert.
	unsub := d.SubscribeToRoute("138", func(buses []fleet.BusLocation) {
		snapshots <- buses
	})
	unsub()

	seedBus(t, st, "138-002", "138", now.Add(time.Second))
	select {
	case got := <-snapshots:
		t.Fatalf("delivery after close: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}
