package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path" env:"SPLITLEDGER_DB_PATH"`
}

type LedgerConfig struct {
	ExpirationDays    int    `toml:"expiration_days" env:"SPLITLEDGER_EXPIRATION_DAYS"`
	ReaperConcurrency int    `toml:"reaper_concurrency" env:"SPLITLEDGER_REAPER_CONCURRENCY"`
	LockWait          string `toml:"lock_wait" env:"SPLITLEDGER_LOCK_WAIT"`
	IntegrityGuard    bool   `toml:"integrity_guard" env:"SPLITLEDGER_INTEGRITY_GUARD"`
	FreeTierPolicy    bool   `toml:"free_tier_policy" env:"SPLITLEDGER_FREE_TIER_POLICY"`
}

type LoggingConfig struct {
	Level   string        `toml:"level" env:"SPLITLEDGER_LOG_LEVEL"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

var logLevels = []string{"debug", "info", "warn", "error", "fatal"}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Ledger: LedgerConfig{
			ExpirationDays:    30,
			ReaperConcurrency: 4,
			LockWait:          "5s",
			IntegrityGuard:    true,
			FreeTierPolicy:    false,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".splitledger/log",
			},
		},
	}
}

// Load reads path over defaults, then applies SPLITLEDGER_* environment overrides.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		case len(content) > 0:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if c.Ledger.ExpirationDays <= 0 {
		return fmt.Errorf("ledger.expiration_days must be > 0, got %d", c.Ledger.ExpirationDays)
	}
	if c.Ledger.ReaperConcurrency <= 0 {
		return fmt.Errorf("ledger.reaper_concurrency must be > 0, got %d", c.Ledger.ReaperConcurrency)
	}
	wait, err := time.ParseDuration(strings.TrimSpace(c.Ledger.LockWait))
	if err != nil {
		return fmt.Errorf("invalid ledger.lock_wait %q: %w", c.Ledger.LockWait, err)
	}
	if wait <= 0 {
		return fmt.Errorf("ledger.lock_wait must be > 0, got %s", wait)
	}
	if !slices.Contains(logLevels, strings.ToLower(strings.TrimSpace(c.Logging.Level))) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev file logging is enabled")
	}
	return nil
}

// ExpirationWindow returns the invitation expiration window.
func (c Config) ExpirationWindow() time.Duration {
	return time.Duration(c.Ledger.ExpirationDays) * 24 * time.Hour
}

// LockWaitDuration returns the parsed per-work lock wait. Call after Validate.
func (c Config) LockWaitDuration() time.Duration {
	wait, err := time.ParseDuration(strings.TrimSpace(c.Ledger.LockWait))
	if err != nil {
		return 0
	}
	return wait
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
