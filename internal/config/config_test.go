package config

import (
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ServerPort == "" {
		t.Error("ServerPort default missing")
	}
	if got := cfg.SeedBalance.StringFixed(2); got != "1000.00" {
		t.Errorf("SeedBalance = %s, want 1000.00", got)
	}
	if got := cfg.DefaultCardLimit.StringFixed(2); got != "50000.00" {
		t.Errorf("DefaultCardLimit = %s, want 50000.00", got)
	}
	if got := cfg.MinCardLimit.StringFixed(2); got != "10000.00" {
		t.Errorf("MinCardLimit = %s, want 10000.00", got)
	}
	if got := cfg.MaxCardLimit.StringFixed(2); got != "500000.00" {
		t.Errorf("MaxCardLimit = %s, want 500000.00", got)
	}
	if cfg.CardExpiryYears != 3 {
		t.Errorf("CardExpiryYears = %d, want 3", cfg.CardExpiryYears)
	}
	if cfg.ExpirySweepSpec == "" {
		t.Error("ExpirySweepSpec default missing")
	}
	if cfg.RedisRateLimitPrefix == "" {
		t.Error("RedisRateLimitPrefix default missing")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SEED_BALANCE", "2500.00")
	t.Setenv("CARD_EXPIRY_YEARS", "5")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if got := cfg.SeedBalance.StringFixed(2); got != "2500.00" {
		t.Errorf("SeedBalance = %s, want 2500.00", got)
	}
	if cfg.CardExpiryYears != 5 {
		t.Errorf("CardExpiryYears = %d, want 5", cfg.CardExpiryYears)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %s, want 9090", cfg.ServerPort)
	}
}

func TestLoadConfigRejectsBadMoney(t *testing.T) {
	t.Setenv("SEED_BALANCE", "not-a-number")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	// Malformed monetary values fall back to the documented default.
	if got := cfg.SeedBalance.StringFixed(2); got != "1000.00" {
		t.Errorf("SeedBalance = %s, want fallback 1000.00", got)
	}
}
