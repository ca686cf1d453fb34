// Package duckdb implements the embedded DuckDB engine. One database
// instance is opened per process; every call gets its own connection.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/malbeclabs/census/census/pkg/engine"
)

const Name = "duckdb"

type Config struct {
	Logger *slog.Logger
	// Path is the database file. Empty opens an in-memory database.
	Path        string
	Threads     int
	MemoryLimit string
	ReadOnly    bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Threads < 0 {
		return errors.New("threads must be non-negative")
	}
	if cfg.ReadOnly && cfg.Path == "" {
		return errors.New("read-only mode requires a database path")
	}
	return nil
}

// DSN renders the connector DSN with the configured settings.
func (cfg *Config) DSN() string {
	params := url.Values{}
	if cfg.ReadOnly {
		params.Set("access_mode", "READ_ONLY")
	}
	if cfg.Threads > 0 {
		params.Set("threads", strconv.Itoa(cfg.Threads))
	}
	if cfg.MemoryLimit != "" {
		params.Set("memory_limit", cfg.MemoryLimit)
	}
	if len(params) == 0 {
		return cfg.Path
	}
	return cfg.Path + "?" + params.Encode()
}

type Engine struct {
	log       *slog.Logger
	cfg       Config
	connector *duckdb.Connector
	db        *sql.DB
}

func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	connector, err := duckdb.NewConnector(cfg.DSN(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB database: %w", err)
	}

	db := sql.OpenDB(connector)
	// Connections are opened per call and closed when the call ends.
	db.SetMaxIdleConns(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		connector.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	cfg.Logger.Info("duckdb: engine initialized", "path", path, "threads", cfg.Threads, "memory_limit", cfg.MemoryLimit, "read_only", cfg.ReadOnly)

	return &Engine{
		log:       cfg.Logger,
		cfg:       cfg,
		connector: connector,
		db:        db,
	}, nil
}

func (e *Engine) Name() string {
	return Name
}

func (e *Engine) Dialect() engine.Dialect {
	return Dialect{}
}

func (e *Engine) Conn(ctx context.Context) (engine.Connection, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	return &connection{conn: conn}, nil
}

func (e *Engine) Close() error {
	dbErr := e.db.Close()
	connErr := e.connector.Close()
	return errors.Join(dbErr, connErr)
}

type connection struct {
	conn *sql.Conn
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (*engine.Result, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (c *connection) Close() error {
	return c.conn.Close()
}

func scanRows(rows *sql.Rows) (*engine.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	meta := make([]engine.ColumnMetadata, len(columnTypes))
	for i, ct := range columnTypes {
		meta[i] = engine.ColumnMetadata{
			Name:             ct.Name(),
			DatabaseTypeName: ct.DatabaseTypeName(),
		}
		if ct.ScanType() != nil {
			meta[i].ScanType = ct.ScanType().String()
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	result := &engine.Result{Columns: columns, ColumnTypes: meta, Rows: []map[string]any{}}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	result.Count = len(result.Rows)
	return result, nil
}

// normalize converts driver values without a natural JSON form.
func normalize(v any) any {
	switch t := v.(type) {
	case duckdb.Decimal:
		return t.Float64()
	case *big.Int:
		if t == nil {
			return nil
		}
		if t.IsInt64() {
			return t.Int64()
		}
		return t.String()
	case []byte:
		return string(t)
	case time.Time:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
