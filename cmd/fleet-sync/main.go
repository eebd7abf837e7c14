package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/traverse-transit/fleet-sync/api"
	"github.com/traverse-transit/fleet-sync/config"
	"github.com/traverse-transit/fleet-sync/dist"
	"github.com/traverse-transit/fleet-sync/events"
	"github.com/traverse-transit/fleet-sync/feed"
	"github.com/traverse-transit/fleet-sync/history"
	"github.com/traverse-transit/fleet-sync/observability"
	"github.com/traverse-transit/fleet-sync/routes"
	"github.com/traverse-transit/fleet-sync/store"
	"github.com/traverse-transit/fleet-sync/syncer"
	"github.com/traverse-transit/fleet-sync/traccar"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	_ = godotenv.Load()

	logger := observability.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	// Telemetry unavailability never stops the process, and neither does
	// the store: without Redis the core runs on the in-process store so
	// the API still serves the simulation feed.
	var st store.Store
	redisStore, err := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.RedisDB, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-process store", "error", err)
		st = store.NewMemoryStore()
	} else {
		st = redisStore
	}
	defer func() { _ = st.Close() }()

	fetcher := traccar.NewClient(cfg.Traccar.URL, cfg.Traccar.Username, cfg.Traccar.Password,
		traccar.WithProbeTimeout(time.Duration(cfg.Traccar.ProbeTimeoutMS)*time.Millisecond),
		traccar.WithRequestTimeout(time.Duration(cfg.Traccar.RequestTimeoutMS)*time.Millisecond),
	)
	catalog := routes.NewStaticCatalog()
	simulator := syncer.NewSimulator(st,
		time.Duration(cfg.Simulator.TickIntervalMS)*time.Millisecond, logger)

	var sinks []syncer.BatchSink
	if cfg.Events.Enabled {
		publisher := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	}
	if cfg.History.Enabled {
		archive, err := history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Error("history archive unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = archive.Close() }()
		sinks = append(sinks, archive)
	}

	engine := syncer.New(cfg.Sync, fetcher, catalog, st, simulator, logger, sinks...)
	distributor := dist.New(st, cfg.Dist.AllBusesLimit, logger)
	exporter := feed.NewExporter(st, cfg.Dist.AllBusesLimit)

	server := api.NewServer(cfg.Server.Port, engine, distributor, fetcher, exporter, st, logger)
	server.Start()

	mode := engine.Initialize(context.Background())
	logger.Info("fleet sync running", "mode", string(mode),
		"traccar", cfg.Traccar.URL, "port", cfg.Server.Port)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	fmt.Fprintln(os.Stderr, "")
	logger.Info("shutdown signal received")

	engine.Stop()
	distributor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
}
