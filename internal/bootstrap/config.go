package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"market_maker/internal/config"
)

// Config is an alias for the project's main configuration struct.
type Config = config.Config

// LoadConfig delegates to the project's config loader and runs additional
// environment preflight checks beyond schema validation.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation.
func checkPreFlight(cfg *Config) error {
	if cfg.App.DatabasePath != ":memory:" {
		dir := filepath.Dir(cfg.App.DatabasePath)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("database_path directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("database_path parent %s is not a directory", dir)
		}
	}

	if cfg.Exit.BackoffMaxSeconds < cfg.Exit.BackoffBaseSeconds {
		return fmt.Errorf("exit.backoff_max_seconds (%d) must be >= exit.backoff_base_seconds (%d)", cfg.Exit.BackoffMaxSeconds, cfg.Exit.BackoffBaseSeconds)
	}

	return nil
}
