package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/api"
	"github.com/lox/weatherreminder/internal/cache"
	"github.com/lox/weatherreminder/internal/config"
	"github.com/lox/weatherreminder/internal/location"
	"github.com/lox/weatherreminder/internal/models"
	"github.com/lox/weatherreminder/internal/provider"
	"github.com/lox/weatherreminder/internal/scheduler"
	"github.com/lox/weatherreminder/internal/store"
	"github.com/lox/weatherreminder/internal/weather"
)

type CLI struct {
	config.Config `embed:""`

	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the HTTP API and the subscription refresher."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
	Fetch   FetchCmd   `cmd:"" help:"Fetch weather for a stored city and print it."`
	Search  SearchCmd  `cmd:"" help:"Search cities by name."`
}

// app is the wired set of components shared by the commands.
type app struct {
	log      *zap.Logger
	db       *sql.DB
	store    *store.Store
	cache    cache.Cache
	engine   *weather.Engine
	resolver *location.Resolver
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	a := &app{log: logger}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a.db, err = store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	a.store = store.New(a.db, logger)
	if err := a.store.Migrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database migrated", zap.String("path", cfg.DBPath))

	var closeCache func() error
	a.cache, closeCache = openCache(ctx, cfg.RedisURL, logger)
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	client := provider.New(cfg.Provider(logger))
	a.engine = weather.New(client, client, a.cache, a.store, cfg.Engine(logger))
	a.resolver = location.NewResolver(a.store, a.engine, logger)
	return a, nil
}

// redisDialTimeout bounds the startup ping so an unreachable Redis cannot
// stall boot.
const redisDialTimeout = 3 * time.Second

// openCache connects to Redis when url is set. An unreachable or invalid
// Redis falls back to the in-process cache; the cache never blocks startup.
func openCache(ctx context.Context, url string, logger *zap.Logger) (cache.Cache, func() error) {
	if url == "" {
		logger.Info("using in-memory cache")
		return cache.NewMemory(), nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	rc, err := cache.DialRedis(dialCtx, url)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		return cache.NewMemory(), nil
	}
	logger.Info("using redis cache")
	return rc, rc.Close
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.log.Sync()
}

type ServeCmd struct {
	NoRefresh bool `help:"Disable the subscription refresher (server only, for local dev)."`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if mem, ok := a.cache.(*cache.Memory); ok {
		go sweep(ctx, mem, time.Minute)
	}

	if !c.NoRefresh {
		refresher := scheduler.NewRefresher(a.store, a.engine, nil, cfg.RefreshInterval, a.log)
		if err := refresher.Start(); err != nil {
			return fmt.Errorf("start refresher: %w", err)
		}
		defer refresher.Stop()
	} else {
		a.log.Info("refresher disabled (--no-refresh)")
	}

	server := api.NewServer(a.store, a.resolver, a.engine, cfg.Port, a.log)
	return server.Run(ctx)
}

// sweep drops expired in-memory cache entries until ctx is done.
func sweep(ctx context.Context, mem *cache.Memory, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem.Sweep()
		}
	}
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(cfg *config.Config) error {
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	logger.Info("database migrated", zap.String("path", cfg.DBPath), zap.Int("version", version))
	return nil
}

type FetchCmd struct {
	CityID int64  `arg:"" help:"Stored city id."`
	Period string `default:"current" enum:"current,hourly,today,tomorrow,3days,week" help:"Forecast period."`
}

func (c *FetchCmd) Run(cfg *config.Config) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.resolver.Get(ctx, c.CityID)
	if err != nil {
		return err
	}
	snap, offset, err := a.engine.FetchForecast(ctx, loc, models.Period(c.Period))
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"city":            loc,
		"period":          c.Period,
		"data":            snap,
		"items_count":     len(snap),
		"timezone_offset": offset,
	})
}

type SearchCmd struct {
	Query   string `arg:"" help:"City name."`
	Persist bool   `help:"Store geocoder results as cities."`
}

func (c *SearchCmd) Run(cfg *config.Config) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.resolver.Search(ctx, c.Query, c.Persist)
	if err != nil {
		return err
	}
	a.log.Info("search complete",
		zap.String("query", c.Query), zap.String("source", string(res.Source)), zap.Int("results", res.Len()))
	if len(res.Candidates) > 0 {
		return printJSON(res.Candidates)
	}
	if res.Locations == nil {
		res.Locations = []models.Location{}
	}
	return printJSON(res.Locations)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("weatherreminder"),
		kong.Description("Weather subscription backend."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Config)
	ctx.FatalIfErrorf(err)
}
