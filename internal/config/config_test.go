package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("ACTIVATION_TOKEN_SECRET", "0123456789abcdef")
	t.Setenv("ADMIN_SYNC_KEY", "admin")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ACTIVATION_TOKEN_TTL", "48h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PUBLIC_BASE_URL", "https://chat.example/")
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")

	cfg := Load()
	if cfg.ActivationTTL != 24*time.Hour {
		t.Fatalf("ttl not clamped: %s", cfg.ActivationTTL)
	}
	if cfg.SweepEnabled {
		t.Fatalf("sweep should default off in production")
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Fatalf("invalid duration should fall back, got %s", cfg.SweepInterval)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.PublicBaseURL != "https://chat.example" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.PublicBaseURL)
	}
	if cfg.ActivationCooldown != time.Minute || cfg.RateLimitPerMinute != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestNonPositiveDurationsFallBack(t *testing.T) {
	t.Setenv("ACTIVATION_TOKEN_SECRET", "0123456789abcdef")
	t.Setenv("ADMIN_SYNC_KEY", "admin")
	t.Setenv("SWEEP_TICK", "0s")
	t.Setenv("SWEEP_INTERVAL", "-5m")
	t.Setenv("ACTIVATION_COOLDOWN", "0")
	t.Setenv("ACTIVATION_TOKEN_TTL", "-1h")

	cfg := Load()
	if cfg.SweepTick != time.Minute {
		t.Fatalf("sweep tick: %s", cfg.SweepTick)
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Fatalf("sweep interval: %s", cfg.SweepInterval)
	}
	if cfg.ActivationCooldown != time.Minute {
		t.Fatalf("activation cooldown: %s", cfg.ActivationCooldown)
	}
	if cfg.ActivationTTL != 30*time.Minute {
		t.Fatalf("activation ttl: %s", cfg.ActivationTTL)
	}
}

func TestClampActivationTTL(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		time.Second:      5 * time.Minute,
		30 * time.Minute: 30 * time.Minute,
		72 * time.Hour:   24 * time.Hour,
	}
	for in, want := range cases {
		if got := ClampActivationTTL(in); got != want {
			t.Fatalf("clamp(%s) = %s, want %s", in, got, want)
		}
	}
}
