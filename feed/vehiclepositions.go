package feed

import (
	"context"
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/traverse-transit/fleet-sync/fleet"
	"github.com/traverse-transit/fleet-sync/store"
)

// Exporter renders the current fleet as a GTFS-Realtime VehiclePositions
// feed for downstream transit consumers.
type Exporter struct {
	st    store.Store
	limit int
}

// NewExporter creates an exporter over the shared store. limit bounds the
// number of vehicles in one feed message.
func NewExporter(st store.Store, limit int) *Exporter {
	return &Exporter{st: st, limit: limit}
}

// BuildVehiclePositions marshals the latest bus locations into a protobuf
// FeedMessage.
func (e *Exporter) BuildVehiclePositions(ctx context.Context) ([]byte, error) {
	buses, err := e.st.AllBusLocations(ctx, e.limit)
	if err != nil {
		return nil, fmt.Errorf("feed query: %w", err)
	}
	return proto.Marshal(FeedMessageFromBuses(buses, time.Now()))
}

// FeedMessageFromBuses converts one snapshot into a GTFS-RT FeedMessage.
func FeedMessageFromBuses(buses []fleet.BusLocation, now time.Time) *gtfsrtpb.FeedMessage {
	version := "2.0"
	incrementality := gtfsrtpb.FeedHeader_FULL_DATASET
	ts := uint64(now.Unix())

	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: &version,
			Incrementality:      &incrementality,
			Timestamp:           &ts,
		},
	}

	for _, bus := range buses {
		entityID := bus.ID
		routeID := bus.RouteNumber
		label := bus.BusInfo.PlateNumber
		lat := float32(bus.Latitude)
		lng := float32(bus.Longitude)
		speed := float32(bus.Speed)
		bearing := float32(bus.Heading)
		vehicleTS := uint64(bus.Timestamp.Unix())

		entity := &gtfsrtpb.FeedEntity{
			Id: &entityID,
			Vehicle: &gtfsrtpb.VehiclePosition{
				Vehicle: &gtfsrtpb.VehicleDescriptor{
					Id:    &entityID,
					Label: &label,
				},
				Trip: &gtfsrtpb.TripDescriptor{
					RouteId: &routeID,
				},
				Position: &gtfsrtpb.Position{
					Latitude:  &lat,
					Longitude: &lng,
					Bearing:   &bearing,
					Speed:     &speed,
				},
				Timestamp: &vehicleTS,
			},
		}
		fm.Entity = append(fm.Entity, entity)
	}
	return fm
}
