package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.RateLimit.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d; want 5", cfg.RateLimit.MaxAttempts)
	}
	if cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("Window = %v; want 15m", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.LockoutDuration != time.Hour {
		t.Errorf("LockoutDuration = %v; want 1h", cfg.RateLimit.LockoutDuration)
	}
	if cfg.AuditRetention != 7*24*time.Hour {
		t.Errorf("AuditRetention = %v; want 7 days", cfg.AuditRetention)
	}
	if cfg.SessionIdle != 15*time.Minute {
		t.Errorf("SessionIdle = %v; want 15m", cfg.SessionIdle)
	}
	if !cfg.ForceRotateRecoveryAfterRedeem {
		t.Error("ForceRotateRecoveryAfterRedeem should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load should not error on missing file: %v", err)
	}
	if cfg.RateLimit.MaxAttempts != Default().RateLimit.MaxAttempts {
		t.Error("missing file should fall back to defaults")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: at: all: ["), 0600); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should reject malformed YAML")
	}
}

func TestLoadValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
data_root: /tmp/vault-data
min_password_score: 2
rate_limit:
  max_attempts: 10
  window: 30m
  lockout_duration: 2h
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataRoot != "/tmp/vault-data" {
		t.Errorf("DataRoot = %q; want /tmp/vault-data", cfg.DataRoot)
	}
	if cfg.RateLimit.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d; want 10", cfg.RateLimit.MaxAttempts)
	}
}

func TestValidateRejectsWeakKDF(t *testing.T) {
	cfg := Default()
	cfg.KDFDefaults.MemoryCostKiB = 1024

	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a KDF memory cost below the floor")
	}
}

func TestValidateRejectsBadRateLimit(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.MaxAttempts = 0

	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a non-positive max_attempts")
	}
}
