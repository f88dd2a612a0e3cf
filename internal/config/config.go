// Package config loads salesetl settings.
//
// Precedence, lowest first: defaults, config file (YAML or JSON), CLI flags.
// An optional .env file is read into the process environment first so DSNs
// can reference ${VARS} without exporting them by hand.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"salesetl/internal/multitable"
	"salesetl/internal/storage"
)

// Config holds all configuration for salesetl.
type Config struct {
	Source   SourceConfig  `mapstructure:"source"`
	Storage  StorageConfig `mapstructure:"storage"`
	Load     LoadConfig    `mapstructure:"load"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	LogLevel string        `mapstructure:"log_level"`
}

type SourceConfig struct {
	// Path of the tab-delimited export.
	Path string `mapstructure:"path"`
}

type StorageConfig struct {
	// Kind is the backend: sqlite, postgres or mssql.
	Kind string `mapstructure:"kind"`

	// DSN is expanded with os.ExpandEnv before use.
	DSN string `mapstructure:"dsn"`

	// DeleteExisting removes the SQLite database file before loading.
	DeleteExisting bool `mapstructure:"delete_existing"`
}

type LoadConfig struct {
	DropTables           bool `mapstructure:"drop_tables"`
	TolerateSchemaErrors bool `mapstructure:"tolerate_schema_errors"`
}

type MetricsConfig struct {
	// Backend is none, pushgateway or datadog.
	Backend        string        `mapstructure:"backend"`
	Job            string        `mapstructure:"job"`
	PushgatewayURL string        `mapstructure:"pushgateway_url"`
	FlushEvery     time.Duration `mapstructure:"flush_every"`

	// Tags is a comma-separated list of extra Datadog tags.
	Tags string `mapstructure:"tags"`
}

var (
	storageKinds   = []string{"sqlite", "postgres", "mssql"}
	metricsKinds   = []string{"none", "pushgateway", "datadog"}
	logLevels      = []string{"trace", "debug", "info", "warn", "error"}
	errMissingPath = errors.New("source.path is required")
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{Path: "data.tsv"},
		Storage: StorageConfig{
			Kind: "sqlite",
			DSN:  "normalized.db",
		},
		Load: LoadConfig{DropTables: true},
		Metrics: MetricsConfig{
			Backend:        "none",
			Job:            "salesetl",
			PushgatewayURL: "http://localhost:9091",
			FlushEvery:     60 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadDotEnv reads path (default ".env") into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a config file.
// Config file locations (in order of precedence):
//  1. Path specified by configFile
//  2. ./salesetl.yaml
//
// A missing default file is not an error; a missing explicit file is.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("salesetl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// DSN returns the storage DSN with environment variables expanded.
func (c *Config) DSN() string {
	return os.ExpandEnv(c.Storage.DSN)
}

// MultiConfig is the storage config handed to the backend registry.
func (c *Config) MultiConfig() storage.MultiConfig {
	return storage.MultiConfig{Kind: c.Storage.Kind, DSN: c.DSN()}
}

// LoadConfig builds the run configuration for multitable.Runner.
func (c *Config) LoadConfig() multitable.Config {
	return multitable.Config{
		Source:               c.Source.Path,
		Storage:              c.MultiConfig(),
		DropTables:           c.Load.DropTables,
		TolerateSchemaErrors: c.Load.TolerateSchemaErrors,
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if !slices.Contains(storageKinds, c.Storage.Kind) {
		return fmt.Errorf("storage.kind must be one of %s, got %q", strings.Join(storageKinds, ", "), c.Storage.Kind)
	}
	if strings.TrimSpace(c.DSN()) == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Storage.DeleteExisting && c.Storage.Kind != "sqlite" {
		return fmt.Errorf("storage.delete_existing is only supported for sqlite")
	}
	if !slices.Contains(metricsKinds, c.Metrics.Backend) {
		return fmt.Errorf("metrics.backend must be one of %s, got %q", strings.Join(metricsKinds, ", "), c.Metrics.Backend)
	}
	if c.Metrics.Backend == "pushgateway" && c.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("metrics.pushgateway_url is required for the pushgateway backend")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("log_level must be one of %s, got %q", strings.Join(logLevels, ", "), c.LogLevel)
	}
	return nil
}

// ValidateLoad checks configuration required for the load command.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Source.Path == "" {
		return errMissingPath
	}
	return nil
}

// ValidateReport checks configuration required for report commands, which
// only read from SQLite.
func (c *Config) ValidateReport() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Storage.Kind != "sqlite" {
		return fmt.Errorf("reports run against sqlite only, storage.kind is %q", c.Storage.Kind)
	}
	return nil
}
