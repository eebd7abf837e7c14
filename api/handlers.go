package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/traverse-transit/fleet-sync/dist"
	"github.com/traverse-transit/fleet-sync/fleet"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Mode:      string(s.engine.Mode()),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	probe := s.prober.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, probe)
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	mode := s.engine.ForceSyncNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func (s *Server) handleAllBuses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	buses, err := s.st.AllBusLocations(r.Context(), limit)
	if err != nil {
		s.logger.Error("bus query failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, buses)
}

func (s *Server) handleRouteBuses(w http.ResponseWriter, r *http.Request) {
	route := chi.URLParam(r, "routeNumber")
	buses, err := s.st.BusLocationsByRoute(r.Context(), route)
	if err != nil {
		s.logger.Error("route bus query failed", "route", route, "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, buses)
}

func (s *Server) handleRouteAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.st.RouteAggregates(r.Context())
	if err != nil {
		s.logger.Error("aggregate query failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, aggs)
}

func (s *Server) handleAllBusesStream(w http.ResponseWriter, r *http.Request) {
	s.streamBuses(w, r, func(cb dist.BusCallback) dist.Unsubscribe {
		return s.distributor.SubscribeToAllBuses(cb)
	})
}

func (s *Server) handleRouteBusesStream(w http.ResponseWriter, r *http.Request) {
	route := chi.URLParam(r, "routeNumber")
	s.streamBuses(w, r, func(cb dist.BusCallback) dist.Unsubscribe {
		return s.distributor.SubscribeToRoute(route, cb)
	})
}

// streamBuses bridges a distribution subscription onto a server-sent event
// stream. Each event carries the complete snapshot for the filter.
func (s *Server) streamBuses(w http.ResponseWriter, r *http.Request,
	subscribe func(dist.BusCallback) dist.Unsubscribe) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)

	snapshots := make(chan []fleet.BusLocation, 1)
	unsubscribe := subscribe(func(buses []fleet.BusLocation) {
		select {
		case snapshots <- buses:
		default:
			// client is behind; the next snapshot supersedes this one
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case buses := <-snapshots:
			if err := writeSSE(w, buses); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleRouteAggregatesStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)

	snapshots := make(chan []fleet.RouteAggregate, 1)
	unsubscribe := s.distributor.SubscribeToRouteAggregates(func(aggs []fleet.RouteAggregate) {
		select {
		case snapshots <- aggs:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case aggs := <-snapshots:
			if err := writeSSE(w, aggs); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleVehiclePositionsFeed(w http.ResponseWriter, r *http.Request) {
	buf, err := s.exporter.BuildVehiclePositions(r.Context())
	if err != nil {
		s.logger.Error("feed build failed", "error", err)
		http.Error(w, "feed unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	_, _ = w.Write(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeSSE(w http.ResponseWriter, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
