package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.DeviationDebounceFixes != 2 || cfg.CorridorWidthM != 150 || cfg.SessionRetentionSec != 120 {
		t.Fatalf("unexpected navigation defaults %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DIRECTIONS_URL", "http://directions:8080")
	t.Setenv("DEVIATION_DEBOUNCE_FIXES", "3")
	t.Setenv("TRACKER_ACCURACY", "high")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.DirectionsURL != "http://directions:8080" || cfg.DeviationDebounceFixes != 3 || cfg.TrackerAccuracy != "high" {
		t.Fatalf("expected navigation overrides, got %+v", cfg)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base := Load()

	cases := map[string]func(*Config){
		"no directions url":  func(c *Config) { c.DirectionsURL = "" },
		"bad accuracy":       func(c *Config) { c.TrackerAccuracy = "perfect" },
		"zero debounce":      func(c *Config) { c.DeviationDebounceFixes = 0 },
		"zero corridor":      func(c *Config) { c.CorridorWidthM = 0 },
		"bad geocoder url":   func(c *Config) { c.GeocoderURL = "not a url" },
		"negative retention": func(c *Config) { c.SessionRetentionSec = -1 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDurations(t *testing.T) {
	cfg := Config{DirectionsTimeoutMS: 1500, GeocodeCacheTTLSec: 60, SessionRetentionSec: 30}
	if cfg.DirectionsTimeout().Milliseconds() != 1500 {
		t.Fatalf("unexpected directions timeout")
	}
	if cfg.GeocodeCacheTTL().Seconds() != 60 {
		t.Fatalf("unexpected cache ttl")
	}
	if cfg.SessionRetention().Seconds() != 30 {
		t.Fatalf("unexpected session retention")
	}
}
