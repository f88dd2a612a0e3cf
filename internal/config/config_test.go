package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Kind != "sqlite" {
		t.Errorf("Storage.Kind=%q, want sqlite", cfg.Storage.Kind)
	}
	if !cfg.Load.DropTables {
		t.Errorf("Load.DropTables=false, want true")
	}
	if cfg.Metrics.Backend != "none" {
		t.Errorf("Metrics.Backend=%q, want none", cfg.Metrics.Backend)
	}
	if cfg.Metrics.FlushEvery != time.Minute {
		t.Errorf("Metrics.FlushEvery=%s, want 1m", cfg.Metrics.FlushEvery)
	}
	if err := cfg.ValidateLoad(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesetl.yaml")
	body := `
source:
  path: sales.tsv
storage:
  kind: postgres
  dsn: postgres://etl@localhost/sales
load:
  drop_tables: false
  tolerate_schema_errors: true
metrics:
  backend: datadog
  flush_every: 15s
  tags: "team:data,env:test"
log_level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Path != "sales.tsv" || cfg.Storage.Kind != "postgres" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Load.DropTables || !cfg.Load.TolerateSchemaErrors {
		t.Fatalf("Load=%+v", cfg.Load)
	}
	if cfg.Metrics.FlushEvery != 15*time.Second || cfg.Metrics.Job != "salesetl" {
		t.Fatalf("Metrics=%+v", cfg.Metrics)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel=%q", cfg.LogLevel)
	}
	if err := cfg.ValidateLoad(); err != nil {
		t.Fatalf("ValidateLoad: %v", err)
	}
	if err := cfg.ValidateReport(); err == nil {
		t.Fatalf("ValidateReport should reject postgres")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestDSN_ExpandsEnv(t *testing.T) {
	t.Setenv("SALESETL_TEST_DB", "/tmp/sales.db")

	cfg := DefaultConfig()
	cfg.Storage.DSN = "${SALESETL_TEST_DB}"
	if got := cfg.DSN(); got != "/tmp/sales.db" {
		t.Fatalf("DSN()=%q, want /tmp/sales.db", got)
	}
	lc := cfg.LoadConfig()
	if lc.Storage.DSN != "/tmp/sales.db" || lc.Source != "data.tsv" || !lc.DropTables {
		t.Fatalf("LoadConfig=%+v", lc)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SALESETL_DOTENV_DSN=file.db\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SALESETL_DOTENV_DSN", "")
	os.Unsetenv("SALESETL_DOTENV_DSN")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SALESETL_DOTENV_DSN"); got != "file.db" {
		t.Fatalf("env=%q, want file.db", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Kind = "oracle" }},
		{"empty dsn", func(c *Config) { c.Storage.DSN = "" }},
		{"delete_existing on postgres", func(c *Config) {
			c.Storage.Kind = "postgres"
			c.Storage.DeleteExisting = true
		}},
		{"unknown metrics", func(c *Config) { c.Metrics.Backend = "statsd" }},
		{"pushgateway without url", func(c *Config) {
			c.Metrics.Backend = "pushgateway"
			c.Metrics.PushgatewayURL = ""
		}},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() succeeded, want error")
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Source.Path = ""
	if err := cfg.ValidateLoad(); err == nil {
		t.Fatalf("ValidateLoad() without source path succeeded")
	}
}
