package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	EngineAthena = "athena"
	EngineDuckDB = "duckdb"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Query         QueryConfig
	Athena        AthenaConfig
	ObjectStore   ObjectStoreConfig
	History       HistoryConfig
	Metrics       MetricsConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type QueryConfig struct {
	Engine       string
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

type AthenaConfig struct {
	Region         string
	Database       string
	OutputLocation string
	WorkGroup      string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type HistoryConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type MetricsConfig struct {
	Address string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ATHENARUN_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ATHENARUN_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "ATHENARUN_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ATHENARUN_QUERY_ENGINE", &cfg.Query.Engine) },
		func() error { return applyDuration(lookup, "ATHENARUN_QUERY_POLL_INTERVAL", &cfg.Query.PollInterval) },
		func() error { return applyInt(lookup, "ATHENARUN_QUERY_MAX_ATTEMPTS", &cfg.Query.MaxAttempts) },
		func() error { return applyDuration(lookup, "ATHENARUN_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyString(lookup, "ATHENARUN_ATHENA_REGION", &cfg.Athena.Region) },
		func() error { return applyString(lookup, "ATHENARUN_ATHENA_DATABASE", &cfg.Athena.Database) },
		func() error { return applyString(lookup, "ATHENARUN_ATHENA_OUTPUT_LOCATION", &cfg.Athena.OutputLocation) },
		func() error { return applyString(lookup, "ATHENARUN_ATHENA_WORKGROUP", &cfg.Athena.WorkGroup) },
		func() error { return applyString(lookup, "ATHENARUN_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ATHENARUN_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ATHENARUN_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ATHENARUN_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ATHENARUN_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ATHENARUN_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "ATHENARUN_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "ATHENARUN_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "ATHENARUN_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyInt(lookup, "ATHENARUN_HISTORY_MAX_IDLE_CONNS", &cfg.History.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "ATHENARUN_HISTORY_CONN_MAX_IDLE_TIME", &cfg.History.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "ATHENARUN_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime)
		},
		func() error { return applyString(lookup, "ATHENARUN_METRICS_ADDR", &cfg.Metrics.Address) },
		func() error { return applyBool(lookup, "ATHENARUN_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ATHENARUN_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the resolved settings. Callers that override fields after
// Load run it again.
func (c Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Query.Engine {
	case EngineAthena, EngineDuckDB:
	default:
		return fmt.Errorf("invalid ATHENARUN_QUERY_ENGINE: %q", c.Query.Engine)
	}
	if c.Query.PollInterval <= 0 {
		return fmt.Errorf("query poll interval must be > 0")
	}
	if c.Query.MaxAttempts < 0 {
		return fmt.Errorf("query max attempts must be >= 0")
	}
	if c.Query.Timeout < 0 {
		return fmt.Errorf("query timeout must be >= 0")
	}
	if out := c.Athena.OutputLocation; out != "" {
		if !strings.HasPrefix(out, "s3://") || !strings.HasSuffix(out, "/") {
			return fmt.Errorf("invalid ATHENARUN_ATHENA_OUTPUT_LOCATION %q: must be an s3:// prefix ending in /", out)
		}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "athenarun"},
		Query: QueryConfig{
			Engine:       EngineAthena,
			PollInterval: 10 * time.Second,
			MaxAttempts:  0,
			Timeout:      0,
		},
		Athena: AthenaConfig{
			Database:  "db_test",
			WorkGroup: "",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "",
			Region:           "",
			UseSSL:           true,
			AutoCreateBucket: false,
		},
		History: HistoryConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Query.Engine = EngineDuckDB
		cfg.Query.PollInterval = 100 * time.Millisecond
		cfg.ObjectStore.Endpoint = "localhost:9000"
		cfg.ObjectStore.Region = "us-east-1"
		cfg.ObjectStore.AccessKeyID = "minio"
		cfg.ObjectStore.SecretAccessKey = "miniostorage"
		cfg.ObjectStore.UseSSL = false
		cfg.ObjectStore.AutoCreateBucket = true
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
