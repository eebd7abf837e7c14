package syncer

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/traverse-transit/fleet-sync/fleet"
	"github.com/traverse-transit/fleet-sync/store"
)

// Simulator is the demo-mode feed: a small synthetic fleet written through
// the same upsert path and schema as live data, every record flagged
// non-live so a later mode switch can purge it cleanly.
type Simulator struct {
	st       store.Store
	logger   *slog.Logger
	interval time.Duration
	rng      *rand.Rand

	mu     sync.Mutex
	fleet  []fleet.BusLocation
	ticker *time.Ticker
	done   chan struct{}
}

// NewSimulator creates a stopped simulator over the given store.
func NewSimulator(st store.Store, interval time.Duration, logger *slog.Logger) *Simulator {
	return &Simulator{
		st:       st,
		logger:   logger.With("component", "simulator"),
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// seedFleet builds the synthetic vehicles around central Colombo.
func (s *Simulator) seedFleet(now time.Time) []fleet.BusLocation {
	seeds := []struct {
		route, plate, model, driver, phone string
		lat, lng, speed                    float64
		status                             fleet.BusStatus
		ignition, motion                   bool
		capacity                           int
	}{
		{"138", "NB-1234", "Ashok Leyland", "Kamal Perera", "+94771234567",
			6.9271, 79.8612, 25, fleet.StatusActive, true, true, 45},
		{"177", "NC-5678", "Tata", "Nimal Silva", "+94771234568",
			6.9200, 79.8500, 18, fleet.StatusActive, true, true, 50},
		{"120", "ND-9012", "Mahindra", "Saman Fernando", "+94771234569",
			6.8700, 79.9000, 0, fleet.StatusInactive, false, false, 40},
		{"187", "NA-4455", "Ashok Leyland", "Ruwan Jayasuriya", "+94771234570",
			7.1800, 79.8840, 32, fleet.StatusActive, true, true, 54},
	}

	buses := make([]fleet.BusLocation, 0, len(seeds))
	for i, seed := range seeds {
		buses = append(buses, fleet.BusLocation{
			ID:          "sim_bus_" + seed.route + "_1",
			DeviceID:    int64(i + 1),
			RouteNumber: seed.route,
			BusNumber:   seed.plate,
			Latitude:    seed.lat + s.jitter(0.01),
			Longitude:   seed.lng + s.jitter(0.01),
			Speed:       seed.speed,
			Heading:     s.rng.Float64() * 360,
			Timestamp:   now,
			LastUpdate:  now,
			Status:      seed.status,
			BusInfo: fleet.BusInfo{
				PlateNumber: seed.plate,
				Capacity:    seed.capacity,
				Type:        "Standard Bus",
				Model:       seed.model,
			},
			Driver: &fleet.DriverInfo{Name: seed.driver, Phone: seed.phone},
			Attributes: fleet.BusAttributes{
				Ignition: seed.ignition,
				Motion:   seed.motion,
				Accuracy: 5,
			},
			IsLiveData: false,
		})
	}
	return buses
}

// Start seeds the fleet and begins the perturbation timer. Idempotent.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}

	now := time.Now()
	s.fleet = s.seedFleet(now)
	s.writeFleet(context.Background(), now)
	s.logger.Info("simulation feed started", "vehicles", len(s.fleet))

	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	go s.loop(s.ticker, s.done)
}

// Stop cancels the timer. Idempotent; the engine purges the records.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.done)
	s.ticker = nil
	s.done = nil
	s.logger.Info("simulation feed stopped")
}

// Running reports whether the perturbation timer is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *Simulator) loop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.step(context.Background())
		}
	}
}

// step applies a small random movement to each vehicle and writes the
// batch through the normal upsert path.
func (s *Simulator) step(ctx context.Context) {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	for i := range s.fleet {
		bus := &s.fleet[i]
		if bus.Status == fleet.StatusActive {
			// roughly 100m of drift per step
			bus.Latitude += s.jitter(0.001)
			bus.Longitude += s.jitter(0.001)
			bus.Speed = clampSpeed(bus.Speed + s.jitter(10))
			bus.Heading = normalizeHeading(bus.Heading + s.jitter(30))
		}
		bus.Timestamp = now
		bus.LastUpdate = now
	}
	s.writeFleet(ctx, now)
	s.mu.Unlock()
}

func (s *Simulator) writeFleet(ctx context.Context, now time.Time) {
	batch := make([]fleet.BusLocation, len(s.fleet))
	copy(batch, s.fleet)
	if err := s.st.UpsertBusLocations(ctx, batch); err != nil {
		s.logger.Warn("simulated batch write failed", "error", err)
		return
	}
	if err := s.st.UpsertRouteAggregates(ctx, fleet.ComputeRouteAggregates(batch, now)); err != nil {
		s.logger.Warn("simulated aggregate write failed", "error", err)
	}
}

// jitter returns a uniform value in (-scale/2, scale/2).
func (s *Simulator) jitter(scale float64) float64 {
	return (s.rng.Float64() - 0.5) * scale
}

func clampSpeed(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func normalizeHeading(h float64) float64 {
	for h < 0 {
		h += 360
	}
	for h >= 360 {
		h -= 360
	}
	return h
}
