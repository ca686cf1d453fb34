package clickhouse

import (
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/census/census/pkg/engine"
)

// scanTargets allocates one typed scan target per column from the driver's
// scan type. Nullable columns report a pointer scan type, so their targets
// are pointers to pointers.
func scanTargets(columnTypes []driver.ColumnType) []any {
	targets := make([]any, len(columnTypes))
	for i, ct := range columnTypes {
		st := ct.ScanType()
		if st == nil {
			var v any
			targets[i] = &v
			continue
		}
		targets[i] = reflect.New(st).Interface()
	}
	return targets
}

// dereference returns the scanned value behind a target. Null values of
// nullable columns become nil.
func dereference(target any) any {
	v := reflect.ValueOf(target)
	if !v.IsValid() {
		return nil
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}

func scanRows(rows driver.Rows) (*engine.Result, error) {
	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()

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

	result := &engine.Result{Columns: columns, ColumnTypes: meta, Rows: []map[string]any{}}
	for rows.Next() {
		targets := scanTargets(columnTypes)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dereference(targets[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	result.Count = len(result.Rows)
	return result, nil
}
