package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("athenarun", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Query.Engine != EngineAthena {
		t.Fatalf("Query.Engine = %q", cfg.Query.Engine)
	}
	if cfg.Query.PollInterval != 10*time.Second {
		t.Fatalf("Query.PollInterval = %s", cfg.Query.PollInterval)
	}
	if cfg.Query.MaxAttempts != 0 || cfg.Query.Timeout != 0 {
		t.Fatalf("Query limits = %d/%s, want unbounded", cfg.Query.MaxAttempts, cfg.Query.Timeout)
	}
	if cfg.Athena.Database != "db_test" {
		t.Fatalf("Athena.Database = %q", cfg.Athena.Database)
	}
	if cfg.ObjectStore.Endpoint != "" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.History.DSN != "" {
		t.Fatal("History.DSN should default to empty")
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadTestProfileDefaults(t *testing.T) {
	cfg, err := Load("athenarun", mapLookup(map[string]string{"ATHENARUN_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Query.Engine != EngineDuckDB {
		t.Fatalf("Query.Engine = %q", cfg.Query.Engine)
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" || cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if !cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to true in test")
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("athenarun", mapLookup(map[string]string{"ATHENARUN_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ATHENARUN_PROFILE":                        "dev",
		"ATHENARUN_SERVICE_NAME":                   "athenarun-custom",
		"ATHENARUN_QUERY_ENGINE":                   "duckdb",
		"ATHENARUN_QUERY_POLL_INTERVAL":            "2s",
		"ATHENARUN_QUERY_MAX_ATTEMPTS":             "30",
		"ATHENARUN_QUERY_TIMEOUT":                  "15m",
		"ATHENARUN_ATHENA_REGION":                  "eu-west-1",
		"ATHENARUN_ATHENA_DATABASE":                "analytics",
		"ATHENARUN_ATHENA_OUTPUT_LOCATION":         "s3://test-data-lake/output/",
		"ATHENARUN_ATHENA_WORKGROUP":               "primary",
		"ATHENARUN_OBJECTSTORE_ENDPOINT":           "https://s3.example.com",
		"ATHENARUN_OBJECTSTORE_REGION":             "us-west-2",
		"ATHENARUN_OBJECTSTORE_ACCESS_KEY":         "abc",
		"ATHENARUN_OBJECTSTORE_SECRET_KEY":         "def",
		"ATHENARUN_OBJECTSTORE_USE_SSL":            "false",
		"ATHENARUN_OBJECTSTORE_PREFIX":             "team-a",
		"ATHENARUN_OBJECTSTORE_AUTO_CREATE_BUCKET": "true",
		"ATHENARUN_HISTORY_DSN":                    "postgres://example",
		"ATHENARUN_HISTORY_MAX_OPEN_CONNS":         "9",
		"ATHENARUN_HISTORY_MAX_IDLE_CONNS":         "3",
		"ATHENARUN_HISTORY_CONN_MAX_IDLE_TIME":     "1m",
		"ATHENARUN_HISTORY_CONN_MAX_LIFETIME":      "1h",
		"ATHENARUN_METRICS_ADDR":                   ":9102",
		"ATHENARUN_LOG_LEVEL":                      "error",
		"ATHENARUN_LOG_JSON":                       "true",
	})
	cfg, err := Load("athenarun", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "athenarun-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.Query.Engine != EngineDuckDB {
		t.Fatalf("Query.Engine = %q", cfg.Query.Engine)
	}
	if cfg.Query.PollInterval != 2*time.Second {
		t.Fatalf("Query.PollInterval = %s", cfg.Query.PollInterval)
	}
	if cfg.Query.MaxAttempts != 30 {
		t.Fatalf("Query.MaxAttempts = %d", cfg.Query.MaxAttempts)
	}
	if cfg.Query.Timeout != 15*time.Minute {
		t.Fatalf("Query.Timeout = %s", cfg.Query.Timeout)
	}
	if cfg.Athena.Region != "eu-west-1" || cfg.Athena.Database != "analytics" || cfg.Athena.WorkGroup != "primary" {
		t.Fatalf("Athena = %+v", cfg.Athena)
	}
	if cfg.Athena.OutputLocation != "s3://test-data-lake/output/" {
		t.Fatalf("Athena.OutputLocation = %q", cfg.Athena.OutputLocation)
	}
	if cfg.ObjectStore.Endpoint != "https://s3.example.com" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.ObjectStore.Region != "us-west-2" {
		t.Fatalf("ObjectStore.Region = %q", cfg.ObjectStore.Region)
	}
	if cfg.ObjectStore.AccessKeyID != "abc" || cfg.ObjectStore.SecretAccessKey != "def" {
		t.Fatal("ObjectStore credentials override mismatch")
	}
	if cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should be false")
	}
	if cfg.ObjectStore.Prefix != "team-a" || !cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.History.DSN != "postgres://example" {
		t.Fatalf("History.DSN = %q", cfg.History.DSN)
	}
	if cfg.History.MaxOpenConns != 9 || cfg.History.MaxIdleConns != 3 {
		t.Fatalf("History conns = %d/%d", cfg.History.MaxOpenConns, cfg.History.MaxIdleConns)
	}
	if cfg.History.ConnMaxIdleTime != time.Minute || cfg.History.ConnMaxLifetime != time.Hour {
		t.Fatalf("History conn times = %s/%s", cfg.History.ConnMaxIdleTime, cfg.History.ConnMaxLifetime)
	}
	if cfg.Metrics.Address != ":9102" {
		t.Fatalf("Metrics.Address = %q", cfg.Metrics.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should be true")
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"ATHENARUN_PROFILE": "oops"},
		{"ATHENARUN_QUERY_ENGINE": "presto"},
		{"ATHENARUN_QUERY_POLL_INTERVAL": "NaN"},
		{"ATHENARUN_QUERY_POLL_INTERVAL": "0s"},
		{"ATHENARUN_QUERY_MAX_ATTEMPTS": "oops"},
		{"ATHENARUN_QUERY_MAX_ATTEMPTS": "-1"},
		{"ATHENARUN_QUERY_TIMEOUT": "-5s"},
		{"ATHENARUN_ATHENA_OUTPUT_LOCATION": "s3://bucket/output"},
		{"ATHENARUN_ATHENA_OUTPUT_LOCATION": "/tmp/output/"},
		{"ATHENARUN_HISTORY_MAX_OPEN_CONNS": "oops"},
		{"ATHENARUN_OBJECTSTORE_USE_SSL": "not-bool"},
		{"ATHENARUN_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("athenarun", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
