package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/traverse-transit/fleet-sync/fleet"
)

const (
	busKeyPrefix   = "bus:"
	routeKeyPrefix = "route:"
	busUpdateIndex = "buses:by_update"
	busSimIndex    = "buses:sim"
	routeSetPrefix = "buses:route:"
	routeIndex     = "routes:all"

	busChangeChannel   = "fleet:changes:buses"
	routeChangeChannel = "fleet:changes:routes"
)

// RedisStore implements Store on Redis: one JSON document per key, sorted
// sets as update-ordered indexes and pub/sub for change notification.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[ChangeKind]map[int]chan ChangeEvent
	nextID int
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisStore connects to Redis and starts the change-notification relay.
func NewRedisStore(addr string, db int, logger *slog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := &RedisStore{
		rdb:    rdb,
		logger: logger,
		subs:   make(map[ChangeKind]map[int]chan ChangeEvent),
		done:   make(chan struct{}),
	}
	s.pubsub = rdb.Subscribe(context.Background(), busChangeChannel, routeChangeChannel)
	go s.relay()
	return s, nil
}

// relay forwards Redis pub/sub messages to local subscribers so that every
// process sharing the store sees the same change stream.
func (s *RedisStore) relay() {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev ChangeEvent
			switch msg.Channel {
			case busChangeChannel:
				ev.Kind = KindBusLocations
			case routeChangeChannel:
				ev.Kind = KindRouteAggregates
			default:
				continue
			}
			if msg.Payload != "" {
				if err := json.Unmarshal([]byte(msg.Payload), &ev.Routes); err != nil {
					s.logger.Warn("malformed change payload", "payload", msg.Payload)
				}
			}
			s.fanout(ev)
		}
	}
}

func (s *RedisStore) fanout(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[ev.Kind] {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; it will re-query on its next
			// event, so dropping this one loses nothing.
		}
	}
}

func (s *RedisStore) publish(ctx context.Context, kind ChangeKind, routes []string) {
	payload, _ := json.Marshal(routes)
	channel := busChangeChannel
	if kind == KindRouteAggregates {
		channel = routeChangeChannel
	}
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.logger.Warn("change publish failed", "channel", channel, "error", err)
	}
}

func (s *RedisStore) UpsertBusLocations(ctx context.Context, locations []fleet.BusLocation) error {
	if len(locations) == 0 {
		return nil
	}
	if len(locations) > MaxWriteBatch {
		return &PersistenceError{Op: "upsert bus locations",
			Err: fmt.Errorf("batch of %d exceeds ceiling %d", len(locations), MaxWriteBatch)}
	}

	// Read phase: existing records decide which upserts are stale and
	// which route index entries need moving.
	ids := make([]string, len(locations))
	for i, loc := range locations {
		ids[i] = busKeyPrefix + loc.ID
	}
	existingRaw, err := s.rdb.MGet(ctx, ids...).Result()
	if err != nil {
		return &PersistenceError{Op: "read existing bus locations", Err: err}
	}

	pipe := s.rdb.TxPipeline()
	touched := make(map[string]struct{})
	for i, loc := range locations {
		if raw, ok := existingRaw[i].(string); ok {
			var existing fleet.BusLocation
			if err := json.Unmarshal([]byte(raw), &existing); err == nil {
				if loc.Timestamp.Before(existing.Timestamp) {
					continue // out-of-order fix, discard
				}
				if existing.RouteNumber != loc.RouteNumber {
					pipe.SRem(ctx, routeSetPrefix+existing.RouteNumber, loc.ID)
				}
			}
		}

		doc, err := json.Marshal(loc)
		if err != nil {
			return &PersistenceError{Op: "encode bus location", Err: err}
		}
		pipe.Set(ctx, busKeyPrefix+loc.ID, doc, 0)
		pipe.ZAdd(ctx, busUpdateIndex, redis.Z{
			Score:  float64(loc.LastUpdate.UnixMilli()),
			Member: loc.ID,
		})
		pipe.SAdd(ctx, routeSetPrefix+loc.RouteNumber, loc.ID)
		if loc.IsLiveData {
			pipe.SRem(ctx, busSimIndex, loc.ID)
		} else {
			pipe.SAdd(ctx, busSimIndex, loc.ID)
		}
		touched[loc.RouteNumber] = struct{}{}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &PersistenceError{Op: "upsert bus locations", Err: err}
	}

	s.publish(ctx, KindBusLocations, sortedKeys(touched))
	return nil
}

func (s *RedisStore) UpsertRouteAggregates(ctx context.Context, aggregates []fleet.RouteAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}
	if len(aggregates) > MaxWriteBatch {
		return &PersistenceError{Op: "upsert route aggregates",
			Err: fmt.Errorf("batch of %d exceeds ceiling %d", len(aggregates), MaxWriteBatch)}
	}

	pipe := s.rdb.TxPipeline()
	routes := make([]string, 0, len(aggregates))
	for _, agg := range aggregates {
		doc, err := json.Marshal(agg)
		if err != nil {
			return &PersistenceError{Op: "encode route aggregate", Err: err}
		}
		pipe.Set(ctx, routeKeyPrefix+agg.RouteNumber, doc, 0)
		pipe.ZAdd(ctx, routeIndex, redis.Z{
			Score:  float64(agg.LastUpdate.UnixMilli()),
			Member: agg.RouteNumber,
		})
		routes = append(routes, agg.RouteNumber)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &PersistenceError{Op: "upsert route aggregates", Err: err}
	}

	s.publish(ctx, KindRouteAggregates, routes)
	return nil
}

func (s *RedisStore) GetBusLocation(ctx context.Context, id string) (*fleet.BusLocation, error) {
	raw, err := s.rdb.Get(ctx, busKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get bus location", Err: err}
	}
	var loc fleet.BusLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, &PersistenceError{Op: "decode bus location", Err: err}
	}
	return &loc, nil
}

func (s *RedisStore) BusLocationsByRoute(ctx context.Context, routeNumber string) ([]fleet.BusLocation, error) {
	ids, err := s.rdb.SMembers(ctx, routeSetPrefix+routeNumber).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "route membership", Err: err}
	}
	locs, err := s.loadBusLocations(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(locs, func(i, j int) bool {
		return locs[i].LastUpdate.After(locs[j].LastUpdate)
	})
	return locs, nil
}

func (s *RedisStore) AllBusLocations(ctx context.Context, limit int) ([]fleet.BusLocation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRevRange(ctx, busUpdateIndex, 0, stop).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "bus update index", Err: err}
	}
	return s.loadBusLocations(ctx, ids)
}

func (s *RedisStore) loadBusLocations(ctx context.Context, ids []string) ([]fleet.BusLocation, error) {
	if len(ids) == 0 {
		return []fleet.BusLocation{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = busKeyPrefix + id
	}
	raws, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "load bus locations", Err: err}
	}
	locs := make([]fleet.BusLocation, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // index entry outlived the document
		}
		var loc fleet.BusLocation
		if err := json.Unmarshal([]byte(str), &loc); err != nil {
			s.logger.Warn("skipping undecodable bus location", "error", err)
			continue
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func (s *RedisStore) RouteAggregates(ctx context.Context) ([]fleet.RouteAggregate, error) {
	routes, err := s.rdb.ZRevRange(ctx, routeIndex, 0, -1).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "route index", Err: err}
	}
	if len(routes) == 0 {
		return []fleet.RouteAggregate{}, nil
	}
	keys := make([]string, len(routes))
	for i, r := range routes {
		keys[i] = routeKeyPrefix + r
	}
	raws, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &PersistenceError{Op: "load route aggregates", Err: err}
	}
	aggs := make([]fleet.RouteAggregate, 0, len(raws))
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var agg fleet.RouteAggregate
		if err := json.Unmarshal([]byte(str), &agg); err != nil {
			s.logger.Warn("skipping undecodable route aggregate", "error", err)
			continue
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

func (s *RedisStore) PurgeSimulated(ctx context.Context) (int, error) {
	ids, err := s.rdb.SMembers(ctx, busSimIndex).Result()
	if err != nil {
		return 0, &PersistenceError{Op: "sim membership", Err: err}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.rdb.TxPipeline()
	touched := make(map[string]struct{})
	for _, id := range ids {
		loc, err := s.GetBusLocation(ctx, id)
		if err == nil && loc != nil {
			pipe.SRem(ctx, routeSetPrefix+loc.RouteNumber, id)
			touched[loc.RouteNumber] = struct{}{}
		}
		pipe.Del(ctx, busKeyPrefix+id)
		pipe.ZRem(ctx, busUpdateIndex, id)
		pipe.SRem(ctx, busSimIndex, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, &PersistenceError{Op: "purge simulated", Err: err}
	}

	// Aggregates carry no live flag; drop any whose route set emptied so
	// simulated-only routes do not outlive the purge.
	cleared := make([]string, 0, len(touched))
	for route := range touched {
		n, err := s.rdb.SCard(ctx, routeSetPrefix+route).Result()
		if err != nil {
			s.logger.Warn("route membership check failed after purge",
				"route", route, "error", err)
			continue
		}
		if n == 0 {
			cleared = append(cleared, route)
		}
	}
	if len(cleared) > 0 {
		sort.Strings(cleared)
		aggPipe := s.rdb.TxPipeline()
		for _, route := range cleared {
			aggPipe.Del(ctx, routeKeyPrefix+route)
			aggPipe.ZRem(ctx, routeIndex, route)
		}
		if _, err := aggPipe.Exec(ctx); err != nil {
			return 0, &PersistenceError{Op: "purge stale aggregates", Err: err}
		}
		s.publish(ctx, KindRouteAggregates, cleared)
	}

	s.publish(ctx, KindBusLocations, nil)
	return len(ids), nil
}

func (s *RedisStore) Subscribe(kind ChangeKind) (<-chan ChangeEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[kind] == nil {
		s.subs[kind] = make(map[int]chan ChangeEvent)
	}
	id := s.nextID
	s.nextID++
	ch := make(chan ChangeEvent, 8)
	s.subs[kind][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[kind], id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *RedisStore) Close() error {
	close(s.done)
	if err := s.pubsub.Close(); err != nil {
		return err
	}
	return s.rdb.Close()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
