package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traverse-transit/fleet-sync/dist"
	"github.com/traverse-transit/fleet-sync/feed"
	"github.com/traverse-transit/fleet-sync/store"
	"github.com/traverse-transit/fleet-sync/syncer"
	"github.com/traverse-transit/fleet-sync/traccar"
)

// Prober is the health-probe slice of the telemetry client.
type Prober interface {
	TestConnection(ctx context.Context) traccar.ProbeResult
}

// Server is the HTTP surface consumed by the mobile/web client and by
// downstream feed consumers.
type Server struct {
	engine      *syncer.Engine
	distributor *dist.Distributor
	prober      Prober
	exporter    *feed.Exporter
	st          store.Store
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer wires the HTTP routes.
func NewServer(port int, engine *syncer.Engine, distributor *dist.Distributor,
	prober Prober, exporter *feed.Exporter, st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		engine:      engine,
		distributor: distributor,
		prober:      prober,
		exporter:    exporter,
		st:          st,
		logger:      logger.With("component", "api"),
	}

	r := chi.NewRouter()
	// The consuming app runs in browsers and webviews across origins.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/connection", s.handleConnection)
	r.Post("/api/sync", s.handleForceSync)
	r.Get("/api/buses", s.handleAllBuses)
	r.Get("/api/buses/stream", s.handleAllBusesStream)
	r.Get("/api/routes", s.handleRouteAggregates)
	r.Get("/api/routes/stream", s.handleRouteAggregatesStream)
	r.Get("/api/routes/{routeNumber}/buses", s.handleRouteBuses)
	r.Get("/api/routes/{routeNumber}/buses/stream", s.handleRouteBusesStream)
	r.Get("/api/gtfs-rt/vehicle-positions", s.handleVehiclePositionsFeed)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No write timeout: the SSE streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("api server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server failed", "error", err)
		}
	}()
}

// Shutdown drains connections within the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
