// Package weather is the acquisition engine: it serves weather snapshots
// for a location and period from the cache, the store and the upstream
// provider, in that order.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lox/weatherreminder/internal/cache"
	"github.com/lox/weatherreminder/internal/metrics"
	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/provider"
	"github.com/lox/weatherreminder/internal/store"
)

var ErrInvalidPeriod = errors.New("invalid period")

var (
	DefaultTodayHours     = []int{2, 5, 8, 11, 14, 17, 20, 23}
	DefaultMatchTolerance = 60 * time.Minute
	DefaultHourlyLimit    = 48
)

// Source is the upstream weather API.
type Source interface {
	OneCall(ctx context.Context, lat, lon float64, exclude string) (*provider.OneCallResponse, error)
	TimezoneOffset(ctx context.Context, lat, lon float64) (int, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) ([]models.Candidate, error)
}

// SnapshotStore persists the latest snapshot per (location, period).
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, locationID int64, period models.Period) (*models.StoredSnapshot, error)
	UpsertSnapshot(ctx context.Context, locationID int64, period models.Period, data models.Snapshot, fetchedAt time.Time) error
}

type Config struct {
	// TodayHours are the local hours of day kept for today and tomorrow.
	TodayHours []int
	// MatchTolerance bounds how far a tomorrow point may be from its slot.
	MatchTolerance time.Duration
	HourlyLimit    int
	// Coalesce makes concurrent misses on the same key share one upstream
	// call.
	Coalesce bool
	Now      func() time.Time
	Logger   *zap.Logger
}

type Engine struct {
	src   Source
	geo   Geocoder
	cache cache.Cache
	store SnapshotStore
	cfg   Config
	log   *zap.Logger
	group singleflight.Group
}

func New(src Source, geo Geocoder, c cache.Cache, st SnapshotStore, cfg Config) *Engine {
	if len(cfg.TodayHours) == 0 {
		cfg.TodayHours = DefaultTodayHours
	}
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = DefaultMatchTolerance
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = DefaultHourlyLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Engine{
		src:   src,
		geo:   geo,
		cache: c,
		store: st,
		cfg:   cfg,
		log:   cfg.Logger.Named("weather"),
	}
}

// FetchCurrent returns a single-point snapshot of current conditions.
func (e *Engine) FetchCurrent(ctx context.Context, loc models.Location) (models.Snapshot, int, error) {
	return e.FetchForecast(ctx, loc, models.PeriodCurrent)
}

// FetchForecast returns the snapshot for period along with the location's
// UTC offset in seconds. Cache and store failures are logged and never
// fail the call; upstream failures do.
func (e *Engine) FetchForecast(ctx context.Context, loc models.Location, period models.Period) (models.Snapshot, int, error) {
	if !period.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	key := CacheKey(loc.ID, period)
	if snap, ok := e.readCache(ctx, key, period); ok {
		offset, err := e.src.TimezoneOffset(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			e.log.Warn("timezone lookup failed on cache hit",
				zap.Int64("location_id", loc.ID), zap.Error(err))
			offset = 0
		}
		return snap, offset, nil
	}

	if !e.cfg.Coalesce {
		return e.fetchFresh(ctx, loc, period, key)
	}

	type result struct {
		snap   models.Snapshot
		offset int
	}
	// The shared fetch outlives any single caller; each caller only stops
	// waiting when its own ctx ends.
	shared := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (interface{}, error) {
		snap, offset, err := e.fetchFresh(shared, loc, period, key)
		return result{snap, offset}, err
	})
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, 0, res.Err
		}
		if res.Shared {
			e.log.Debug("coalesced fetch", zap.String("key", key))
		}
		r := res.Val.(result)
		return r.snap, r.offset, nil
	}
}

func (e *Engine) fetchFresh(ctx context.Context, loc models.Location, period models.Period, key string) (models.Snapshot, int, error) {
	var seed models.Snapshot
	if period == models.PeriodToday {
		seed = e.storedSeed(ctx, loc.ID)
	}

	resp, err := e.src.OneCall(ctx, loc.Latitude, loc.Longitude, excludeFor(period))
	if err != nil {
		e.log.Error("upstream fetch failed",
			zap.Int64("location_id", loc.ID), zap.String("period", string(period)), zap.Error(err))
		return nil, 0, err
	}
	offset := resp.Offset()

	snap := e.selectPoints(resp, period, offset)
	if period == models.PeriodToday {
		fresh := len(snap)
		snap = e.mergeToday(snap, seed, offset)
		e.log.Debug("merged today",
			zap.Int64("location_id", loc.ID),
			zap.String("date", todayDate(e.cfg.Now(), offset)),
			zap.Int("fresh", fresh), zap.Int("stored", len(seed)), zap.Int("merged", len(snap)))
	}

	if len(snap) == 0 {
		e.log.Warn("upstream returned no points",
			zap.Int64("location_id", loc.ID), zap.String("period", string(period)))
		return snap, offset, nil
	}

	e.checkQuality(loc.ID, period, snap)
	e.writeCache(ctx, key, period, snap)
	e.persist(ctx, loc.ID, period, snap)

	e.log.Info("fetched weather",
		zap.Int64("location_id", loc.ID),
		zap.String("location", loc.Name),
		zap.String("period", string(period)),
		zap.Int("points", len(snap)))
	return snap, offset, nil
}

// SearchLocations asks the geocoder for candidates matching query.
func (e *Engine) SearchLocations(ctx context.Context, query string) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return e.geo.Geocode(ctx, query)
}

func (e *Engine) readCache(ctx context.Context, key string, period models.Period) (models.Snapshot, bool) {
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(string(period), "error").Inc()
		e.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues(string(period), "miss").Inc()
		return nil, false
	}

	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		metrics.CacheLookups.WithLabelValues(string(period), "error").Inc()
		e.log.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(string(period), "hit").Inc()
	return snap, true
}

func (e *Engine) writeCache(ctx context.Context, key string, period models.Period, snap models.Snapshot) {
	blob, err := json.Marshal(snap)
	if err == nil {
		err = e.cache.Set(ctx, key, blob, TTL(period))
	}
	if err != nil {
		e.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Engine) persist(ctx context.Context, locationID int64, period models.Period, snap models.Snapshot) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertSnapshot(ctx, locationID, period, snap, e.cfg.Now()); err != nil {
		e.log.Warn("snapshot upsert failed",
			zap.Int64("location_id", locationID), zap.String("period", string(period)), zap.Error(err))
		return
	}
	metrics.SnapshotsStored.WithLabelValues(string(period)).Inc()
}

func (e *Engine) storedSeed(ctx context.Context, locationID int64) models.Snapshot {
	if e.store == nil {
		return nil
	}
	stored, err := e.store.GetSnapshot(ctx, locationID, models.PeriodToday)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		e.log.Warn("stored today snapshot unreadable",
			zap.Int64("location_id", locationID), zap.Error(err))
		return nil
	}
	return stored.Data
}
