package config

import (
	"testing"
	"time"
)

func TestDefaultPassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/netwatch.yaml")
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Target != Default().Target {
		t.Fatalf("expected default target, got %q", cfg.Target)
	}
}

func TestEnvOverridesApply(t *testing.T) {
	t.Setenv("TARGET_IP", "1.2.3.4")
	t.Setenv("INTERVAL", "500ms")
	t.Setenv("ENABLE_QUIET_HOURS", "true")
	t.Setenv("QUIET_HOURS_START", "22")
	t.Setenv("QUIET_HOURS_END", "6")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Target != "1.2.3.4" {
		t.Fatalf("expected env override for target, got %q", cfg.Target)
	}
	if cfg.Interval != 500*time.Millisecond {
		t.Fatalf("expected 500ms interval, got %v", cfg.Interval)
	}
	if !cfg.EnableQuietHours {
		t.Fatal("expected quiet hours enabled")
	}
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := Default()
	cfg.Interval = 2 * time.Second // exceeds the 1Hz cap
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for interval > 1s")
	}

	cfg2 := Default()
	cfg2.PacketLossThreshold = 1.5
	if err := cfg2.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range loss threshold")
	}

	cfg3 := Default()
	cfg3.Target = ""
	if err := cfg3.Validate(); err == nil {
		t.Fatal("expected validation error for empty target")
	}
}
