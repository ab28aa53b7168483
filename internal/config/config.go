// Package config holds the runtime settings shared by every command. Values
// come from flags, the environment and an optional .env file.
package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lox/weatherreminder/internal/httputil"
	"github.com/lox/weatherreminder/internal/provider"
	"github.com/lox/weatherreminder/internal/weather"
)

type Config struct {
	WeatherAPIURL   string        `name:"weather-api-url" env:"WEATHER_API_URL" default:"https://api.openweathermap.org/data/3.0/onecall" help:"One Call endpoint."`
	WeatherAPIKey   string        `name:"weather-api-key" env:"WEATHER_API_KEY" help:"Upstream API key."`
	GeocodingURL    string        `name:"weather-geocoding-url" env:"WEATHER_GEOCODING_URL" default:"https://api.openweathermap.org/geo/1.0/direct" help:"Direct geocoding endpoint."`
	RedisURL        string        `name:"redis-url" env:"REDIS_URL" help:"Redis URL. Empty uses an in-process cache."`
	DBPath          string        `name:"db" env:"DB_PATH" default:"data/weatherreminder.db" help:"Path to SQLite database."`
	Port            string        `name:"port" env:"PORT" default:"8080" help:"HTTP server port."`
	HTTPTimeout     time.Duration `name:"http-timeout" env:"HTTP_TIMEOUT" default:"10s" help:"Upstream request timeout."`
	MaxRetries      int           `name:"max-retries" env:"MAX_RETRIES" default:"3" help:"Upstream attempts when rate limited."`
	RetryInterval   time.Duration `name:"retry-initial-interval" env:"RETRY_INITIAL_INTERVAL" default:"1s" help:"First backoff delay."`
	HourlyLimit     int           `name:"hourly-limit" env:"HOURLY_LIMIT" default:"48" help:"Points kept for the hourly period."`
	TodayHours      []int         `name:"today-hours" env:"TODAY_HOURS" default:"2,5,8,11,14,17,20,23" sep:"," help:"Local hours kept for today and tomorrow."`
	MatchTolerance  time.Duration `name:"match-tolerance" env:"MATCH_TOLERANCE" default:"60m" help:"Max distance of a tomorrow point from its slot."`
	RefreshInterval time.Duration `name:"refresh-interval" env:"REFRESH_INTERVAL" default:"15m" help:"Subscription refresh interval."`
	CoalesceFetches bool          `name:"coalesce-fetches" env:"COALESCE_FETCHES" help:"Share one upstream call between concurrent misses."`
	LogLevel        string        `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
}

// Validate checks settings that kong cannot express in tags.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http-timeout must be positive")
	}
	for _, h := range c.TodayHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("today-hours: %d is not an hour of day", h)
		}
	}
	return nil
}

// RequireAPIKey is checked by commands that talk to the upstream.
func (c *Config) RequireAPIKey() error {
	if c.WeatherAPIKey == "" {
		return fmt.Errorf("WEATHER_API_KEY environment variable required")
	}
	return nil
}

func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}

func (c *Config) Provider(logger *zap.Logger) provider.Config {
	return provider.Config{
		OneCallURL:           c.WeatherAPIURL,
		GeocodingURL:         c.GeocodingURL,
		APIKey:               c.WeatherAPIKey,
		HTTPClient:           httputil.NewClient(c.HTTPTimeout),
		MaxAttempts:          c.MaxRetries,
		RetryInitialInterval: c.RetryInterval,
		Logger:               logger,
	}
}

func (c *Config) Engine(logger *zap.Logger) weather.Config {
	return weather.Config{
		TodayHours:     c.TodayHours,
		MatchTolerance: c.MatchTolerance,
		HourlyLimit:    c.HourlyLimit,
		Coalesce:       c.CoalesceFetches,
		Logger:         logger,
	}
}
