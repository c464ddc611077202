// Package config loads phantomvault's operational policy from a YAML file.
// Unlike Picocrypt-NG (a single-shot CLI/GUI tool configured entirely by
// flags), phantomvault runs as a long-lived per-user service and needs a
// persisted policy surface: KDF floor, rate-limit thresholds, audit
// retention, session idle timeout, minimum password strength, and the
// stream chunk size used by the folder mover.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"phantomvault/internal/crypto"
	"phantomvault/internal/errs"
	"phantomvault/internal/util"
)

// RateLimitPolicy bounds authentication attempts per profile (C5 RateLimiter).
type RateLimitPolicy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	Window          time.Duration `yaml:"window"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
}

// Config is phantomvault's full operational policy.
type Config struct {
	DataRoot        string            `yaml:"data_root"`
	KDFDefaults     crypto.KDFParams  `yaml:"kdf_defaults"`
	RateLimit       RateLimitPolicy   `yaml:"rate_limit"`
	AuditRetention  time.Duration     `yaml:"audit_retention"`
	SessionIdle     time.Duration     `yaml:"session_idle_timeout"`
	MinPasswordScore int              `yaml:"min_password_score"`
	ChunkSizeBytes  int               `yaml:"chunk_size_bytes"`

	// ForceRotateRecoveryAfterRedeem requires a password change immediately
	// following a successful recovery-token redemption. Default true.
	ForceRotateRecoveryAfterRedeem bool `yaml:"force_rotate_recovery_after_redeem"`
}

// Default returns the baseline defaults: N=5 attempts, W=15m, L=1h
// lockout; 7-day audit retention; 15-minute idle timeout; 64 MiB/3/4 KDF
// params; 1 MiB stream chunks.
func Default() Config {
	return Config{
		DataRoot:    "~/.phantomvault",
		KDFDefaults: crypto.DefaultKDFParams(),
		RateLimit: RateLimitPolicy{
			MaxAttempts:     5,
			Window:          15 * time.Minute,
			LockoutDuration: time.Hour,
		},
		AuditRetention:                 7 * 24 * time.Hour,
		SessionIdle:                    15 * time.Minute,
		MinPasswordScore:               3,
		ChunkSizeBytes:                 util.MiB,
		ForceRotateRecoveryAfterRedeem: true,
	}
}

// Load reads and parses a YAML config file at path. A missing file is not an
// error - it returns Default(). Malformed YAML is reported as a SchemaError.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, errs.NewIOOpError("read", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &errs.SchemaError{Kind: "config.yaml", Version: 0}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate enforces non-negotiable floors even when an operator
// supplies a custom config.yaml.
func (c Config) Validate() error {
	if err := c.KDFDefaults.Validate(); err != nil {
		return err
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return errs.NewValidationError("rate_limit.max_attempts", "must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errs.NewValidationError("rate_limit.window", "must be positive")
	}
	if c.MinPasswordScore < 0 || c.MinPasswordScore > 4 {
		return errs.NewValidationError("min_password_score", "must be between 0 and 4 (zxcvbn scale)")
	}
	if c.ChunkSizeBytes <= 0 {
		return errs.NewValidationError("chunk_size_bytes", "must be positive")
	}
	return nil
}
