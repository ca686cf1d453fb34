package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Records is the result of a query: "id" then the resolved variables in
// request order, one map per row.
type Records struct {
	Columns []string
	Rows    []map[string]any
}

// MarshalJSON encodes the rows as an array of objects whose keys follow
// Columns.
func (r *Records) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range r.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(row[col])
			if err != nil {
				return nil, fmt.Errorf("failed to encode column %s: %w", col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// YearRecords pairs one year with its records.
type YearRecords struct {
	Year int      `json:"year"`
	Data *Records `json:"data"`
}

// MultiYearResult holds one entry per requested year, in request order.
type MultiYearResult struct {
	Years []YearRecords
}

// MarshalJSON keeps the established response shape: a single year encodes
// as its bare records array, several years as [{"year", "data"}].
func (m *MultiYearResult) MarshalJSON() ([]byte, error) {
	if len(m.Years) == 1 {
		return json.Marshal(m.Years[0].Data)
	}
	if m.Years == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.Years)
}
