// loader.go — configuration loading with priority cascade.
// Priority: defaults < global config < project config < env vars <
// flags. Adapted from the teacher's cmd/gasoline-cmd/config/loader.go,
// replacing its MCP-server settings (port, auto-start) with the
// broker's own tunables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all resolved configuration values.
type Config struct {
	DefaultGracePeriodMS    int    `json:"default_grace_period_ms"`
	DefaultInitialTimeoutMS int    `json:"default_initial_timeout_ms"`
	AuditCapacity           int    `json:"audit_capacity"`
	Format                  string `json:"format"`
}

// FlagOverrides holds values explicitly set via command-line flags.
// A nil pointer means the flag was not set, so lower-priority values
// are kept.
type FlagOverrides struct {
	DefaultGracePeriodMS    *int
	DefaultInitialTimeoutMS *int
	AuditCapacity           *int
	Format                  *string
}

// Defaults returns the base configuration with sensible defaults.
func Defaults() Config {
	return Config{
		DefaultGracePeriodMS:    3000,
		DefaultInitialTimeoutMS: 1000,
		AuditCapacity:           256,
		Format:                  "human",
	}
}

// GracePeriod returns DefaultGracePeriodMS as a time.Duration.
func (c Config) GracePeriod() time.Duration {
	return time.Duration(c.DefaultGracePeriodMS) * time.Millisecond
}

// InitialTimeout returns DefaultInitialTimeoutMS as a time.Duration.
func (c Config) InitialTimeout() time.Duration {
	return time.Duration(c.DefaultInitialTimeoutMS) * time.Millisecond
}

// Load builds the final configuration by applying the priority
// cascade: defaults < global (~/.attrbroker/config.json) < project
// (.attrbroker.json in projectDir) < env vars < flags.
func Load(projectDir string, flags *FlagOverrides) (Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		_ = loadJSONFile(&cfg, filepath.Join(home, ".attrbroker", "config.json"))
	}

	if err := loadJSONFile(&cfg, filepath.Join(projectDir, ".attrbroker.json")); err != nil {
		return cfg, fmt.Errorf("project config: %w", err)
	}

	loadEnvVars(&cfg)

	if flags != nil {
		applyFlags(&cfg, flags)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// fileConfig uses pointers to distinguish "not set" from zero values.
type fileConfig struct {
	DefaultGracePeriodMS    *int    `json:"default_grace_period_ms"`
	DefaultInitialTimeoutMS *int    `json:"default_initial_timeout_ms"`
	AuditCapacity           *int    `json:"audit_capacity"`
	Format                  *string `json:"format"`
}

func loadJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.DefaultGracePeriodMS != nil {
		cfg.DefaultGracePeriodMS = *fc.DefaultGracePeriodMS
	}
	if fc.DefaultInitialTimeoutMS != nil {
		cfg.DefaultInitialTimeoutMS = *fc.DefaultInitialTimeoutMS
	}
	if fc.AuditCapacity != nil {
		cfg.AuditCapacity = *fc.AuditCapacity
	}
	if fc.Format != nil {
		cfg.Format = *fc.Format
	}
	return nil
}

func loadEnvVars(cfg *Config) {
	if v := os.Getenv("ATTRBROKER_GRACE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.DefaultGracePeriodMS = ms
		}
	}
	if v := os.Getenv("ATTRBROKER_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.DefaultInitialTimeoutMS = ms
		}
	}
	if v := os.Getenv("ATTRBROKER_AUDIT_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuditCapacity = n
		}
	}
	if v := os.Getenv("ATTRBROKER_FORMAT"); v != "" {
		cfg.Format = v
	}
}

func applyFlags(cfg *Config, flags *FlagOverrides) {
	if flags.DefaultGracePeriodMS != nil {
		cfg.DefaultGracePeriodMS = *flags.DefaultGracePeriodMS
	}
	if flags.DefaultInitialTimeoutMS != nil {
		cfg.DefaultInitialTimeoutMS = *flags.DefaultInitialTimeoutMS
	}
	if flags.AuditCapacity != nil {
		cfg.AuditCapacity = *flags.AuditCapacity
	}
	if flags.Format != nil {
		cfg.Format = *flags.Format
	}
}

// Validate checks that configuration values are within acceptable
// ranges.
func (c Config) Validate() error {
	if c.DefaultGracePeriodMS < 0 {
		return fmt.Errorf("default_grace_period_ms must be >= 0, got %d", c.DefaultGracePeriodMS)
	}
	if c.DefaultInitialTimeoutMS < 0 {
		return fmt.Errorf("default_initial_timeout_ms must be >= 0, got %d", c.DefaultInitialTimeoutMS)
	}
	if c.AuditCapacity < 1 {
		return fmt.Errorf("audit_capacity must be >= 1, got %d", c.AuditCapacity)
	}

	validFormats := map[string]bool{"human": true, "json": true, "csv": true}
	if !validFormats[c.Format] {
		return fmt.Errorf("format must be human, json, or csv, got %q", c.Format)
	}

	return nil
}
