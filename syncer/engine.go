package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/traverse-transit/fleet-sync/config"
	"github.com/traverse-transit/fleet-sync/fleet"
	"github.com/traverse-transit/fleet-sync/observability"
	"github.com/traverse-transit/fleet-sync/routes"
	"github.com/traverse-transit/fleet-sync/store"
	"github.com/traverse-transit/fleet-sync/traccar"
)

// Mode is the process-wide synchronization state, owned exclusively by the
// engine.
type Mode string

const (
	ModeUninitialized Mode = "uninitialized"
	ModeConnecting    Mode = "connecting"
	ModeLive          Mode = "live"
	ModeDemo          Mode = "demo"
	ModeStopped       Mode = "stopped"
)

// TelemetryFetcher is the slice of the traccar client the engine needs.
type TelemetryFetcher interface {
	TestConnection(ctx context.Context) traccar.ProbeResult
	GetDevices(ctx context.Context) ([]fleet.Device, error)
	GetPositions(ctx context.Context) ([]fleet.Position, error)
}

// BatchSink receives each committed live batch for side channels (event
// stream, history archive). Sink errors are logged, never propagated into
// the tick result.
type BatchSink interface {
	Consume(ctx context.Context, locations []fleet.BusLocation, aggregates []fleet.RouteAggregate) error
}

// Engine is the sync scheduler: it drives the fetch, convert, upsert,
// aggregate cycle on a fixed cadence, degrades to the simulation feed when
// the live source is unavailable, and recovers without leaking demo data.
type Engine struct {
	fetcher TelemetryFetcher
	catalog routes.Catalog
	st      store.Store
	sim     *Simulator
	sinks   []BatchSink
	logger  *slog.Logger

	tickInterval time.Duration
	batchSize    int
	// downgradeAfter switches live mode to demo after N consecutive
	// failed ticks; zero disables the policy.
	downgradeAfter int

	mu         sync.Mutex
	mode       Mode
	retry      *RetryPolicy
	consecFail int
	ticker     *time.Ticker
	tickerDone chan struct{}
	retryTimer *time.Timer

	inFlightMu sync.Mutex
	inFlight   bool

	now func() time.Time
}

// New builds an engine. Sinks are optional.
func New(cfg config.SyncConfig, fetcher TelemetryFetcher, catalog routes.Catalog,
	st store.Store, sim *Simulator, logger *slog.Logger, sinks ...BatchSink) *Engine {
	e := &Engine{
		fetcher:        fetcher,
		catalog:        catalog,
		st:             st,
		sim:            sim,
		sinks:          sinks,
		logger:         logger.With("component", "syncer"),
		tickInterval:   time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		batchSize:      cfg.BatchSize,
		downgradeAfter: cfg.DowngradeAfterFailures,
		mode:           ModeUninitialized,
		retry:          NewRetryPolicy(cfg.MaxRetries, time.Duration(cfg.RetryDelayMS)*time.Millisecond),
		now:            time.Now,
	}
	if e.batchSize <= 0 || e.batchSize > store.MaxWriteBatch {
		e.batchSize = store.MaxWriteBatch
	}
	observability.SetSyncMode(string(e.mode))
	return e
}

// Mode returns the current synchronization mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) setMode(m Mode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
	observability.SetSyncMode(string(m))
	e.logger.Info("sync mode changed", "mode", string(m))
}

// Initialize probes the telemetry service and settles into Live or Demo
// mode. The outcome is returned as a value; initialization never fails the
// process, it degrades.
func (e *Engine) Initialize(ctx context.Context) Mode {
	e.setMode(ModeConnecting)

	probe := e.fetcher.TestConnection(ctx)
	if !probe.Reachable || probe.Degraded {
		e.logger.Warn("telemetry service not usable, entering demo mode",
			"reachable", probe.Reachable, "degraded", probe.Degraded, "message", probe.Message)
		e.enterDemo()
		return ModeDemo
	}
	e.logger.Info("telemetry service reachable", "version", probe.Version)

	devices, err := e.fetcher.GetDevices(ctx)
	if err != nil {
		e.logger.Warn("initial device fetch failed, entering demo mode", "error", err)
		e.enterDemo()
		return ModeDemo
	}
	positions, err := e.fetcher.GetPositions(ctx)
	if err != nil {
		e.logger.Warn("initial position fetch failed, entering demo mode", "error", err)
		e.enterDemo()
		return ModeDemo
	}
	if len(devices) == 0 && len(positions) == 0 {
		e.logger.Warn("telemetry service has no devices, entering demo mode")
		e.enterDemo()
		return ModeDemo
	}

	e.enterLive(ctx)
	return ModeLive
}

// enterLive purges simulated records, runs one synchronous sync pass and
// starts the periodic timer. Demo records must be gone before the first
// live batch commits so no ghost vehicles survive the switch.
func (e *Engine) enterLive(ctx context.Context) {
	if e.sim != nil {
		e.sim.Stop()
	}
	purged, err := e.st.PurgeSimulated(ctx)
	if err != nil {
		e.logger.Error("demo data purge failed", "error", err)
	} else if purged > 0 {
		observability.SimulatedPurged.Add(float64(purged))
		e.logger.Info("purged simulated records", "count", purged)
	}

	if err := e.syncOnce(ctx); err != nil {
		e.logger.Warn("initial sync pass failed", "error", err)
	}
	e.startTicker()
	e.setMode(ModeLive)
}

func (e *Engine) enterDemo() {
	e.stopTicker()
	if e.sim != nil {
		e.sim.Start()
	}
	e.setMode(ModeDemo)
}

func (e *Engine) startTicker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ticker != nil {
		return
	}
	e.ticker = time.NewTicker(e.tickInterval)
	e.tickerDone = make(chan struct{})
	go e.loop(e.ticker, e.tickerDone)
}

func (e *Engine) stopTicker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.tickerDone)
	e.ticker = nil
	e.tickerDone = nil
}

func (e *Engine) loop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.tick(context.Background())
		}
	}
}

// tick runs one scheduled cycle, skipping (not queueing) if the previous
// one is still in flight so per-device write ordering holds across ticks.
func (e *Engine) tick(ctx context.Context) {
	e.inFlightMu.Lock()
	if e.inFlight {
		e.inFlightMu.Unlock()
		observability.SyncTicksSkipped.Inc()
		e.logger.Debug("tick still in flight, skipping")
		return
	}
	e.inFlight = true
	e.inFlightMu.Unlock()
	defer func() {
		e.inFlightMu.Lock()
		e.inFlight = false
		e.inFlightMu.Unlock()
	}()

	if e.Mode() != ModeLive {
		return
	}

	if err := e.syncOnce(ctx); err != nil {
		e.onTickFailure(err)
		return
	}
	e.onTickSuccess()
}

func (e *Engine) onTickSuccess() {
	e.mu.Lock()
	e.retry.Success()
	e.consecFail = 0
	e.mu.Unlock()
	observability.RetryCount.Set(0)
	observability.SyncTicks.Inc()
}

func (e *Engine) onTickFailure(err error) {
	observability.SyncTickFailures.Inc()

	e.mu.Lock()
	e.consecFail++
	consec := e.consecFail
	decision := e.retry.Failure()
	attempt := e.retry.Count()
	observability.RetryCount.Set(float64(attempt))
	e.mu.Unlock()

	if e.downgradeAfter > 0 && consec >= e.downgradeAfter {
		e.logger.Error("consecutive tick failures exceeded downgrade threshold, entering demo mode",
			"failures", consec, "error", err)
		e.enterDemo()
		return
	}

	if decision.Retry {
		e.logger.Warn("tick failed, scheduling retry",
			"error", err, "attempt", attempt, "delay", decision.Delay)
		e.mu.Lock()
		if e.retryTimer != nil {
			e.retryTimer.Stop()
		}
		e.retryTimer = time.AfterFunc(decision.Delay, func() {
			e.tick(context.Background())
		})
		e.mu.Unlock()
		return
	}
	// Budget spent; counter already reset, the periodic cadence carries on.
	e.logger.Error("tick retry budget exhausted, resuming normal cadence", "error", err)
}

// syncOnce is one full fetch, convert, upsert, aggregate pass.
func (e *Engine) syncOnce(ctx context.Context) error {
	var (
		wg        sync.WaitGroup
		devices   []fleet.Device
		positions []fleet.Position
		devErr    error
		posErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		start := e.now()
		devices, devErr = e.fetcher.GetDevices(ctx)
		observability.ObserveFetchLatency("devices", start)
	}()
	go func() {
		defer wg.Done()
		start := e.now()
		positions, posErr = e.fetcher.GetPositions(ctx)
		observability.ObserveFetchLatency("positions", start)
	}()
	wg.Wait()
	if devErr != nil {
		return fmt.Errorf("fetch devices: %w", devErr)
	}
	if posErr != nil {
		return fmt.Errorf("fetch positions: %w", posErr)
	}
	observability.DevicesSeen.Set(float64(len(devices)))

	latest := fleet.LatestPositions(positions)
	now := e.now()
	lookup := func(routeNumber string) (*fleet.RouteInfo, error) {
		return e.catalog.GetRouteByNumber(ctx, routeNumber)
	}

	locations := make([]fleet.BusLocation, 0, len(devices))
	for _, device := range devices {
		position, ok := latest[device.ID]
		if !ok {
			continue
		}
		locations = append(locations, fleet.Convert(device, position, lookup, now))
	}
	if len(locations) == 0 {
		return nil
	}

	// Chunks commit sequentially; the store rejects anything above its
	// batch ceiling.
	for begin := 0; begin < len(locations); begin += e.batchSize {
		end := begin + e.batchSize
		if end > len(locations) {
			end = len(locations)
		}
		start := e.now()
		if err := e.st.UpsertBusLocations(ctx, locations[begin:end]); err != nil {
			return err
		}
		observability.CommitLatency.Observe(time.Since(start).Seconds())
	}
	observability.LocationsUpserted.Add(float64(len(locations)))

	aggregates := fleet.ComputeRouteAggregates(locations, now)
	if err := e.st.UpsertRouteAggregates(ctx, aggregates); err != nil {
		return err
	}
	for _, agg := range aggregates {
		if err := e.catalog.UpdateActiveBusCounts(ctx, agg.RouteNumber, agg.ActiveBuses, agg.TotalBuses); err != nil {
			e.logger.Warn("route catalog count update failed",
				"route", agg.RouteNumber, "error", err)
		}
	}

	for _, sink := range e.sinks {
		if err := sink.Consume(ctx, locations, aggregates); err != nil {
			e.logger.Warn("batch sink failed", "error", err)
		}
	}

	e.logger.Info("sync pass complete",
		"buses", len(locations), "routes", len(aggregates))
	return nil
}

// ForceSyncNow runs an immediate pass. In demo mode it first retries the
// live path; a usable probe with devices promotes the engine back to Live
// (purging simulated records before the first live commit).
func (e *Engine) ForceSyncNow(ctx context.Context) Mode {
	switch e.Mode() {
	case ModeLive:
		e.tick(ctx)
	case ModeDemo:
		probe := e.fetcher.TestConnection(ctx)
		if !probe.Reachable || probe.Degraded {
			return ModeDemo
		}
		devices, err := e.fetcher.GetDevices(ctx)
		if err != nil || len(devices) == 0 {
			return ModeDemo
		}
		e.logger.Info("live telemetry available again, leaving demo mode")
		e.enterLive(ctx)
	}
	return e.Mode()
}

// Stop cancels the periodic timer, any pending retry timer and the
// simulation feed. Idempotent.
func (e *Engine) Stop() {
	e.stopTicker()
	e.mu.Lock()
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	alreadyStopped := e.mode == ModeStopped
	e.mu.Unlock()
	if e.sim != nil {
		e.sim.Stop()
	}
	if !alreadyStopped {
		e.setMode(ModeStopped)
	}
}
