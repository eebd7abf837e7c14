package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/traverse-transit/fleet-sync/fleet"
)

// LocationEvent is one bus location update on the analytics stream.
type LocationEvent struct {
	BusID       string    `json:"busId"`
	RouteNumber string    `json:"routeNumber"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Speed       float64   `json:"speed"`
	Status      string    `json:"status"`
	IsLiveData  bool      `json:"isLiveData"`
	FixTime     time.Time `json:"fixTime"`
	SyncedAt    time.Time `json:"syncedAt"`
}

// Publisher emits one event per upserted bus location to a Kafka topic. It
// plugs into the sync engine as a batch sink.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger.With(slog.String("component", "events")),
	}
}

// Consume publishes the batch. Aggregates are not streamed; consumers
// derive their own rollups.
func (p *Publisher) Consume(ctx context.Context, locations []fleet.BusLocation, _ []fleet.RouteAggregate) error {
	msgs := make([]kafka.Message, 0, len(locations))
	for _, loc := range locations {
		value, err := json.Marshal(LocationEvent{
			BusID:       loc.ID,
			RouteNumber: loc.RouteNumber,
			Latitude:    loc.Latitude,
			Longitude:   loc.Longitude,
			Speed:       loc.Speed,
			Status:      string(loc.Status),
			IsLiveData:  loc.IsLiveData,
			FixTime:     loc.Timestamp,
			SyncedAt:    loc.LastUpdate,
		})
		if err != nil {
			return fmt.Errorf("encode location event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(loc.ID),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish location events: %w", err)
	}
	p.logger.Debug("published location events", "count", len(msgs))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
