package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsync_ticks_total",
		Help: "Completed sync ticks",
	})
	SyncTickFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsync_tick_failures_total",
		Help: "Failed sync ticks",
	})
	SyncTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsync_ticks_skipped_total",
		Help: "Ticks skipped because the previous one was still in flight",
	})
	DevicesSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsync_devices_seen",
		Help: "Devices returned by the last successful fetch",
	})
	LocationsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsync_locations_upserted_total",
		Help: "Bus locations written to the store",
	})
	SimulatedPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsync_simulated_purged_total",
		Help: "Simulated records purged on demo-to-live transitions",
	})
	RetryCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsync_retry_count",
		Help: "Current consecutive tick failure count",
	})
	SyncMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetsync_mode",
		Help: "Current sync mode (1 for the active mode)",
	}, []string{"mode"})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsync_subscribers",
		Help: "Active distribution subscriptions",
	})
	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetsync_fetch_latency_seconds",
		Help:    "Telemetry fetch latency per endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetsync_commit_latency_seconds",
		Help:    "Store batch commit latency",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveFetchLatency records one telemetry fetch duration.
func ObserveFetchLatency(endpoint string, start time.Time) {
	FetchLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// SetSyncMode flips the mode gauge so exactly one label reads 1.
func SetSyncMode(mode string) {
	for _, m := range []string{"uninitialized", "connecting", "live", "demo", "stopped"} {
		v := 0.0
		if m == mode {
			v = 1.0
		}
		SyncMode.WithLabelValues(m).Set(v)
	}
}
