package config

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	var cfg Config
	parser, err := kong.New(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return &cfg
}

func TestDefaults(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "")
	cfg := parse(t)

	if cfg.WeatherAPIURL != "https://api.openweathermap.org/data/3.0/onecall" {
		t.Errorf("WeatherAPIURL = %q", cfg.WeatherAPIURL)
	}
	if cfg.DBPath != "data/weatherreminder.db" || cfg.Port != "8080" {
		t.Errorf("DBPath = %q, Port = %q", cfg.DBPath, cfg.Port)
	}
	if cfg.HTTPTimeout != 10*time.Second || cfg.MaxRetries != 3 || cfg.RetryInterval != time.Second {
		t.Errorf("retry settings = %v %d %v", cfg.HTTPTimeout, cfg.MaxRetries, cfg.RetryInterval)
	}
	if cfg.MatchTolerance != time.Hour || cfg.RefreshInterval != 15*time.Minute {
		t.Errorf("durations = %v %v", cfg.MatchTolerance, cfg.RefreshInterval)
	}
	want := []int{2, 5, 8, 11, 14, 17, 20, 23}
	if len(cfg.TodayHours) != len(want) {
		t.Fatalf("TodayHours = %v", cfg.TodayHours)
	}
	for i := range want {
		if cfg.TodayHours[i] != want[i] {
			t.Errorf("TodayHours[%d] = %d, want %d", i, cfg.TodayHours[i], want[i])
		}
	}
	if cfg.CoalesceFetches || cfg.RedisURL != "" {
		t.Errorf("CoalesceFetches = %v, RedisURL = %q", cfg.CoalesceFetches, cfg.RedisURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("RequireAPIKey() should fail without a key")
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "secret")
	t.Setenv("TODAY_HOURS", "6,12,18")
	t.Setenv("MATCH_TOLERANCE", "90m")
	t.Setenv("COALESCE_FETCHES", "true")
	t.Setenv("LOG_LEVEL", "debug")
	cfg := parse(t)

	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey() = %v", err)
	}
	engine := cfg.Engine(nil)
	if len(engine.TodayHours) != 3 || engine.TodayHours[2] != 18 {
		t.Errorf("TodayHours = %v", engine.TodayHours)
	}
	if engine.MatchTolerance != 90*time.Minute || !engine.Coalesce {
		t.Errorf("engine config = %+v", engine)
	}
	if p := cfg.Provider(nil); p.APIKey != "secret" || p.MaxAttempts != 3 || p.HTTPClient.Timeout != 10*time.Second {
		t.Errorf("provider config = %+v", p)
	}
	if _, err := cfg.Logger(); err != nil {
		t.Errorf("Logger() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"bad hour", func(c *Config) { c.TodayHours = []int{2, 24} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
