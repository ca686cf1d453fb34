// Package engine defines the analytical engine abstraction the census core
// runs SQL against. Implementations live in subpackages.
package engine

import (
	"context"
	"fmt"
)

// Engine hands out per-call connections to one analytical database.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string
	Conn(ctx context.Context) (Connection, error)
	Dialect() Dialect
	Close() error
}

// Connection is a single-use handle. Callers close it when done; it is never
// shared between goroutines.
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (*Result, error)
	Close() error
}

// Dialect renders the engine-specific statements used for introspection and
// table materialization. Table names are quoted by the dialect.
type Dialect interface {
	// DescribeTable returns a statement whose first result column holds the
	// table's column names in declared order.
	DescribeTable(table string) string
	// ListTables returns a statement whose first result column holds the
	// names of the tables in the current database.
	ListTables() string
	// MaterializeTable returns a statement creating table from the parquet
	// file at source unless it already exists.
	MaterializeTable(table, source string) string
	DropTable(table string) string
}

// ColumnMetadata represents metadata about a result column.
type ColumnMetadata struct {
	Name             string
	DatabaseTypeName string
	ScanType         string
}

// Result is a fully materialized query result.
type Result struct {
	Columns     []string
	ColumnTypes []ColumnMetadata
	Rows        []map[string]any
	Count       int
}

// FirstColumn returns the first column of every row as strings. It is used
// to read introspection results whose first column is a name.
func FirstColumn(res *Result) ([]string, error) {
	if res == nil || len(res.Columns) == 0 {
		return nil, nil
	}
	key := res.Columns[0]
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		switch v := row[key].(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		case nil:
			return nil, fmt.Errorf("null value in column %q", key)
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}
