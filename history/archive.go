package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/traverse-transit/fleet-sync/fleet"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_ticks (
	tick_id TEXT PRIMARY KEY,
	synced_at_utc TEXT NOT NULL,
	bus_count INTEGER NOT NULL,
	route_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bus_fixes (
	tick_id TEXT NOT NULL REFERENCES sync_ticks(tick_id),
	bus_id TEXT NOT NULL,
	route_number TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	speed REAL NOT NULL,
	heading REAL NOT NULL,
	status TEXT NOT NULL,
	is_live INTEGER NOT NULL,
	fix_time_utc TEXT NOT NULL,
	PRIMARY KEY (tick_id, bus_id)
);
CREATE INDEX IF NOT EXISTS idx_bus_fixes_bus ON bus_fixes(bus_id, fix_time_utc);
`

// Archive records each tick's batch in SQLite for offline analysis. The
// real-time store only ever holds the latest fix per bus; the archive keeps
// the trail. It plugs into the sync engine as a batch sink.
type Archive struct {
	conn    *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex // sqlite allows a single writer
}

// Open opens (creating if needed) the archive database.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	dsn := path + "?_journal=WAL&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return &Archive{
		conn:   conn,
		logger: logger.With("component", "history"),
	}, nil
}

// Consume appends one tick's batch.
func (a *Archive) Consume(ctx context.Context, locations []fleet.BusLocation, aggregates []fleet.RouteAggregate) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tickID := uuid.NewString()
	syncedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sync_ticks (tick_id, synced_at_utc, bus_count, route_count) VALUES (?, ?, ?, ?)",
		tickID, syncedAt, len(locations), len(aggregates),
	); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bus_fixes (
			tick_id, bus_id, route_number, latitude, longitude,
			speed, heading, status, is_live, fix_time_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fix insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, loc := range locations {
		isLive := 0
		if loc.IsLiveData {
			isLive = 1
		}
		if _, err := stmt.ExecContext(ctx,
			tickID, loc.ID, loc.RouteNumber, loc.Latitude, loc.Longitude,
			loc.Speed, loc.Heading, string(loc.Status), isLive,
			loc.Timestamp.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert fix for %s: %w", loc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	a.logger.Debug("archived tick", "tick", tickID, "buses", len(locations))
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.conn.Close()
}
