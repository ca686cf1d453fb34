// Package config loads the census API configuration from flags and the
// environment. Environment variables override flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/census/census/pkg/engine/clickhouse"
	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"github.com/malbeclabs/census/census/pkg/storage"
	flag "github.com/spf13/pflag"
)

const (
	DefaultListenAddr         = "0.0.0.0:8080"
	DefaultConfigPath         = "data-config.json"
	DefaultRateLimitPerMinute = 100
)

type Config struct {
	Verbose    bool
	ListenAddr string
	ConfigPath string

	Engine        string
	DBPath        string
	DBThreads     int
	DBMemoryLimit string
	Workers       int
	QueueSize     int
	QueryTimeout  time.Duration

	Storage     string
	DataDir     string
	S3Bucket    string
	S3Prefix    string
	S3Download  bool
	CacheDir    string
	EnsureOnRun bool

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string
	ClickHouseSecure   bool

	SentryDSN          string
	SentryEnvironment  string
	RateLimitPerMinute int
	AllowedOrigins     []string
	ShutdownTimeout    time.Duration
}

// RegisterFlags binds the configuration to fs with its defaults.
func RegisterFlags(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose (debug) logging")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", DefaultListenAddr, "HTTP listen address (or set LISTEN_ADDR env var)")
	fs.StringVar(&cfg.ConfigPath, "config", DefaultConfigPath, "dataset configuration document, JSON or YAML (or set CENSUS_CONFIG_PATH env var)")

	fs.StringVar(&cfg.Engine, "engine", duckdb.Name, "analytical engine: duckdb or clickhouse (or set CENSUS_ENGINE env var)")
	fs.StringVar(&cfg.DBPath, "db-path", "", "DuckDB database file, empty for in-memory (or set CENSUS_DB_PATH env var)")
	fs.IntVar(&cfg.DBThreads, "db-threads", 0, "DuckDB threads, 0 for engine default (or set CENSUS_DB_THREADS env var)")
	fs.StringVar(&cfg.DBMemoryLimit, "db-memory-limit", "", "DuckDB memory limit, e.g. 2GB (or set CENSUS_DB_MEMORY_LIMIT env var)")
	fs.IntVar(&cfg.Workers, "workers", 0, "executor workers, 0 for min(32, NumCPU+4) (or set CENSUS_WORKERS env var)")
	fs.IntVar(&cfg.QueueSize, "queue-size", 0, "executor queue size, 0 for 4x workers (or set CENSUS_QUEUE_SIZE env var)")
	fs.DurationVar(&cfg.QueryTimeout, "query-timeout", 30*time.Second, "per-request query timeout (or set CENSUS_QUERY_TIMEOUT env var)")

	fs.StringVar(&cfg.Storage, "storage", "", "storage mode: local or s3, empty to detect (or set CENSUS_STORAGE env var)")
	fs.StringVar(&cfg.DataDir, "data-dir", "", "local data root, defaults to the config document's directory (or set CENSUS_DATA_DIR env var)")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", "", "S3 bucket holding data files (or set CENSUS_S3_BUCKET env var)")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", "", "S3 key prefix (or set CENSUS_S3_PREFIX env var)")
	fs.BoolVar(&cfg.S3Download, "s3-download", false, "download S3 objects to the cache dir instead of reading them in place (or set CENSUS_S3_DOWNLOAD=true env var)")
	fs.StringVar(&cfg.CacheDir, "cache-dir", "", "download cache directory (or set CENSUS_CACHE_DIR env var)")
	fs.BoolVar(&cfg.EnsureOnRun, "ensure-tables", true, "materialize missing tables at startup (or set CENSUS_ENSURE_TABLES env var)")

	fs.StringVar(&cfg.ClickHouseAddr, "clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	fs.StringVar(&cfg.ClickHouseDatabase, "clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	fs.StringVar(&cfg.ClickHouseUsername, "clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	fs.StringVar(&cfg.ClickHousePassword, "clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	fs.BoolVar(&cfg.ClickHouseSecure, "clickhouse-secure", false, "enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true env var)")

	fs.StringVar(&cfg.SentryDSN, "sentry-dsn", "", "Sentry DSN, empty disables error reporting (or set SENTRY_DSN env var)")
	fs.StringVar(&cfg.SentryEnvironment, "sentry-environment", "", "Sentry environment (or set SENTRY_ENVIRONMENT env var)")
	fs.IntVar(&cfg.RateLimitPerMinute, "rate-limit-per-minute", DefaultRateLimitPerMinute, "census requests per minute per IP, 0 disables (or set RATE_LIMIT_PER_MINUTE env var)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", nil, "CORS allowed origins (or set CORS_ALLOWED_ORIGINS env var)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	return cfg
}

// ApplyEnv overrides fields with the environment variables that are set.
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("CENSUS_CONFIG_PATH", &cfg.ConfigPath)
	str("CENSUS_ENGINE", &cfg.Engine)
	str("CENSUS_DB_PATH", &cfg.DBPath)
	num("CENSUS_DB_THREADS", &cfg.DBThreads)
	str("CENSUS_DB_MEMORY_LIMIT", &cfg.DBMemoryLimit)
	num("CENSUS_WORKERS", &cfg.Workers)
	num("CENSUS_QUEUE_SIZE", &cfg.QueueSize)
	duration("CENSUS_QUERY_TIMEOUT", &cfg.QueryTimeout)

	str("CENSUS_STORAGE", &cfg.Storage)
	str("CENSUS_DATA_DIR", &cfg.DataDir)
	str("CENSUS_S3_BUCKET", &cfg.S3Bucket)
	str("CENSUS_S3_PREFIX", &cfg.S3Prefix)
	boolean("CENSUS_S3_DOWNLOAD", &cfg.S3Download)
	str("CENSUS_CACHE_DIR", &cfg.CacheDir)
	boolean("CENSUS_ENSURE_TABLES", &cfg.EnsureOnRun)

	str("CLICKHOUSE_ADDR_TCP", &cfg.ClickHouseAddr)
	str("CLICKHOUSE_DATABASE", &cfg.ClickHouseDatabase)
	str("CLICKHOUSE_USERNAME", &cfg.ClickHouseUsername)
	str("CLICKHOUSE_PASSWORD", &cfg.ClickHousePassword)
	boolean("CLICKHOUSE_SECURE", &cfg.ClickHouseSecure)

	str("SENTRY_DSN", &cfg.SentryDSN)
	str("SENTRY_ENVIRONMENT", &cfg.SentryEnvironment)
	num("RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute)
	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for o := range strings.SplitSeq(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	return errors.Join(errs...)
}

func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.ConfigPath == "" {
		return errors.New("config path is required")
	}
	switch cfg.Engine {
	case duckdb.Name:
		if cfg.DBThreads < 0 {
			return errors.New("db threads must be non-negative")
		}
	case clickhouse.Name:
		if cfg.ClickHouseAddr == "" {
			return errors.New("clickhouse addr is required for the clickhouse engine")
		}
	default:
		return fmt.Errorf("unknown engine %q", cfg.Engine)
	}
	if cfg.Workers < 0 || cfg.QueueSize < 0 {
		return errors.New("workers and queue size must be non-negative")
	}
	if cfg.QueryTimeout < 0 {
		return errors.New("query timeout must be non-negative")
	}
	switch cfg.Storage {
	case "", storage.ModeLocal:
	case storage.ModeS3:
		if cfg.S3Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage mode %q", cfg.Storage)
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("rate limit must be non-negative")
	}
	return nil
}
