package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rendis/worldscript/internal/scheduler"
)

// Config holds all worldscript server configuration.
// Priority: env vars > settings.yaml > defaults.
type Config struct {
	DBPath            string                 `yaml:"db_path" env:"DB_PATH"`
	ContentFile       string                 `yaml:"content_file" env:"CONTENT_FILE"`
	LogLevel          string                 `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat         string                 `yaml:"log_format" env:"LOG_FORMAT"`
	PoolSize          int                    `yaml:"pool_size" env:"POOL_SIZE"`
	MaxSteps          int                    `yaml:"max_steps" env:"MAX_STEPS"`
	DeadlockThreshold int                    `yaml:"deadlock_threshold" env:"DEADLOCK_THRESHOLD"`
	Seed              int64                  `yaml:"seed" env:"SEED"`
	OTLPEndpoint      string                 `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	WorldEvents       []scheduler.WorldEvent `yaml:"world_events,omitempty"`
}

const envPrefix = "WORLDSCRIPT_"

func defaultConfig() Config {
	return Config{
		DBPath:            filepath.Join(worldscriptDir(), "world.db"),
		LogLevel:          "info",
		LogFormat:         "json",
		PoolSize:          4,
		MaxSteps:          64,
		DeadlockThreshold: 5,
	}
}

func worldscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".worldscript"
	}
	return filepath.Join(home, ".worldscript")
}

func settingsPath() string {
	return filepath.Join(worldscriptDir(), "settings.yaml")
}

// loadConfig layers the settings file at path (default location when
// empty; a missing file is fine) and the environment over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = settingsPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool_size must be at least 1, got %d", c.PoolSize))
	}
	if c.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps))
	}
	if c.DeadlockThreshold < 1 {
		errs = append(errs, fmt.Errorf("deadlock_threshold must be at least 1, got %d", c.DeadlockThreshold))
	}
	return errors.Join(errs...)
}

// dsn turns the configured path into a libSQL file URI.
func (c Config) dsn() string {
	return "file:" + c.DBPath
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.ContentFile != new.ContentFile {
		d.RestartNeeded = append(d.RestartNeeded, "content_file")
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	if old.PoolSize != new.PoolSize {
		d.RestartNeeded = append(d.RestartNeeded, "pool_size")
	}
	if old.MaxSteps != new.MaxSteps || old.DeadlockThreshold != new.DeadlockThreshold {
		d.RestartNeeded = append(d.RestartNeeded, "guards")
	}
	if old.Seed != new.Seed {
		d.RestartNeeded = append(d.RestartNeeded, "seed")
	}
	if old.OTLPEndpoint != new.OTLPEndpoint {
		d.RestartNeeded = append(d.RestartNeeded, "otlp_endpoint")
	}
	if !sameEvents(old.WorldEvents, new.WorldEvents) {
		d.RestartNeeded = append(d.RestartNeeded, "world_events")
	}
	return d
}

func sameEvents(a, b []scheduler.WorldEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
