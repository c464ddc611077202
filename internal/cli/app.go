package cli

import (
	"os"
	"path/filepath"
	"strings"

	"phantomvault/internal/audit"
	"phantomvault/internal/config"
	"phantomvault/internal/profile"
	"phantomvault/internal/ratelimit"
	"phantomvault/internal/vault"
)

// configPath is the global --config flag, read by every subcommand.
var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: <data-root>/config.yaml)")
}

// expandDataRoot resolves a leading "~" against the invoking user's home
// directory - config.Default's DataRoot ("~/.phantomvault") is written this
// way since the config package itself must stay platform-agnostic.
func expandDataRoot(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// app bundles the long-lived objects one CLI invocation needs: the
// registry for profile lifecycle commands and the vault manager for
// hide/unhide/list/verify. Both share one audit log and rate limiter.
type app struct {
	registry *profile.Registry
	manager  *vault.Manager
	auditLog *audit.Log
	cfg      config.Config
}

func (a *app) Close() {
	if a.auditLog != nil {
		a.auditLog.Close()
	}
}

// cfgForceRotate reports whether config.yaml requires an immediate password
// change after a recovery redemption.
func (a *app) cfgForceRotate() bool {
	return a.cfg.ForceRotateRecoveryAfterRedeem
}

// newApp loads config (or defaults), opens the audit log, and wires a
// ProfileRegistry and VaultManager over the same data root - the same
// bootstrap every subcommand's RunE performs before touching the API.
func newApp() (*app, error) {
	cfg := config.Default()
	path := configPath
	if path == "" {
		path = filepath.Join(expandDataRoot(cfg.DataRoot), "config.yaml")
	}
	loaded, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg = loaded
	cfg.DataRoot = expandDataRoot(cfg.DataRoot)

	if err := os.MkdirAll(cfg.DataRoot, 0o700); err != nil {
		return nil, err
	}

	auditPath := filepath.Join(cfg.DataRoot, "logs", "security.log")
	if err := os.MkdirAll(filepath.Dir(auditPath), 0o700); err != nil {
		return nil, err
	}
	auditLog, err := audit.New(auditPath, cfg.AuditRetention)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit, func(identifier string) {
		auditLog.Record("RateLimitBreach", "critical", identifier, "rate limiter failed open", nil)
	})

	registry := profile.NewRegistry(filepath.Join(cfg.DataRoot, "profiles"), cfg, limiter, auditLog)
	manager := vault.NewManager(cfg.DataRoot, registry, auditLog, cfg)

	return &app{registry: registry, manager: manager, auditLog: auditLog, cfg: cfg}, nil
}
