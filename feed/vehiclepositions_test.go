package feed

import (
	"context"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/traverse-transit/fleet-sync/fleet"
	"github.com/traverse-transit/fleet-sync/store"
)

func sampleBus() fleet.BusLocation {
	ts := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	return fleet.BusLocation{
		ID:          "138-007",
		RouteNumber: "138",
		BusNumber:   "007",
		Latitude:    6.9271,
		Longitude:   79.8612,
		Speed:       24.5,
		Heading:     180,
		Timestamp:   ts,
		LastUpdate:  ts,
		Status:      fleet.StatusActive,
		BusInfo:     fleet.BusInfo{PlateNumber: "NB-1234"},
		IsLiveData:  true,
	}
}

func TestFeedMessageFromBuses(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 30, 0, time.UTC)
	fm := FeedMessageFromBuses([]fleet.BusLocation{sampleBus()}, now)

	if got := fm.Header.GetGtfsRealtimeVersion(); got != "2.0" {
		t.Errorf("feed version = %q", got)
	}
	if fm.Header.GetIncrementality() != gtfsrtpb.FeedHeader_FULL_DATASET {
		t.Errorf("incrementality = %v", fm.Header.GetIncrementality())
	}
	if fm.Header.GetTimestamp() != uint64(now.Unix()) {
		t.Errorf("header timestamp = %d", fm.Header.GetTimestamp())
	}

	if len(fm.Entity) != 1 {
		t.Fatalf("got %d entities", len(fm.Entity))
	}
	vp := fm.Entity[0].GetVehicle()
	if fm.Entity[0].GetId() != "138-007" {
		t.Errorf("entity id = %q", fm.Entity[0].GetId())
	}
	if vp.GetTrip().GetRouteId() != "138" {
		t.Errorf("route id = %q", vp.GetTrip().GetRouteId())
	}
	if vp.GetVehicle().GetLabel() != "NB-1234" {
		t.Errorf("label = %q", vp.GetVehicle().GetLabel())
	}
	pos := vp.GetPosition()
	if pos.GetLatitude() != 6.9271 || pos.GetLongitude() != 79.8612 {
		t.Errorf("position = %v,%v", pos.GetLatitude(), pos.GetLongitude())
	}
	if pos.GetBearing() != 180 || pos.GetSpeed() != 24.5 {
		t.Errorf("bearing/speed = %v/%v", pos.GetBearing(), pos.GetSpeed())
	}
	if vp.GetTimestamp() != uint64(sampleBus().Timestamp.Unix()) {
		t.Errorf("vehicle timestamp = %d", vp.GetTimestamp())
	}
}

func TestFeedMessageEmptyFleet(t *testing.T) {
	fm := FeedMessageFromBuses(nil, time.Now())
	if len(fm.Entity) != 0 {
		t.Fatalf("empty fleet produced %d entities", len(fm.Entity))
	}
	if fm.Header == nil {
		t.Fatal("header missing")
	}
}

func TestBuildVehiclePositionsRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	if err := st.UpsertBusLocations(context.Background(), []fleet.BusLocation{sampleBus()}); err != nil {
		t.Fatal(err)
	}

	e := NewExporter(st, 100)
	data, err := e.BuildVehiclePositions(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(data, &fm); err != nil {
		t.Fatal(err)
	}
	if len(fm.Entity) != 1 || fm.Entity[0].GetId() != "138-007" {
		t.Fatalf("decoded feed = %+v", fm.Entity)
	}
}
