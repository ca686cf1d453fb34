// Package clickhouse implements the engine over a ClickHouse server. The
// native connection is pooled by the driver and shared by every call.
package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/census/census/pkg/engine"
)

const (
	Name            = "clickhouse"
	DefaultDatabase = "default"

	defaultMaxExecutionTime = 60 * time.Second
)

type Config struct {
	Logger   *slog.Logger
	Addr     string
	Database string
	Username string
	Password string
	// Secure enables TLS, e.g. for ClickHouse Cloud on port 9440.
	Secure           bool
	MaxExecutionTime time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Addr == "" {
		return errors.New("addr is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.MaxExecutionTime <= 0 {
		cfg.MaxExecutionTime = defaultMaxExecutionTime
	}
	return nil
}

type Engine struct {
	log  *slog.Logger
	conn driver.Conn
}

func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.MaxExecutionTime.Seconds()),
		},
		DialTimeout: 5 * time.Second,
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.Info("clickhouse: engine initialized", "addr", cfg.Addr, "database", cfg.Database, "secure", cfg.Secure)

	return &Engine{log: cfg.Logger, conn: conn}, nil
}

func (e *Engine) Name() string {
	return Name
}

func (e *Engine) Dialect() engine.Dialect {
	return Dialect{}
}

func (e *Engine) Conn(ctx context.Context) (engine.Connection, error) {
	return &connection{conn: e.conn}, nil
}

func (e *Engine) Close() error {
	return e.conn.Close()
}

type connection struct {
	conn driver.Conn
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (*engine.Result, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (c *connection) Close() error {
	// Connection is shared, don't close it
	return nil
}
