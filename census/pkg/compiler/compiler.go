// Package compiler builds the SELECT statement for a census query from a
// resolved table, its identifier columns and a variable mapping.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/census/census/pkg/ident"
	"github.com/malbeclabs/census/census/pkg/schema"
)

// IDColumn is the output name of the row identifier.
const IDColumn = "id"

// Mapping resolves a canonical variable name to its physical column.
type Mapping interface {
	Physical(canonical string) (string, bool)
}

// Statement is a compiled query with its bind arguments and the output
// column names in select-list order.
type Statement struct {
	SQL     string
	Args    []any
	Columns []string
}

// Compile builds a projection over table returning "id" followed by every
// requested variable found in mapping, in request order. Variables missing
// from the mapping, repeated, or named "id" are skipped. Limit and offset
// are always bound as parameters.
func Compile(table string, ids schema.IdentifierSpec, mapping Mapping, variables []string, limit, offset int) (Statement, error) {
	if table == "" {
		return Statement{}, errors.New("table is required")
	}
	if len(ids) == 0 {
		return Statement{}, errors.New("at least one identifier column is required")
	}
	if limit < 0 || offset < 0 {
		return Statement{}, fmt.Errorf("limit and offset must be non-negative, got %d/%d", limit, offset)
	}

	selects := []string{IDExpression(ids) + " AS " + ident.Quote(IDColumn)}
	columns := []string{IDColumn}
	seen := map[string]bool{IDColumn: true}
	for _, v := range variables {
		if seen[v] {
			continue
		}
		physical, ok := mapping.Physical(v)
		if !ok {
			continue
		}
		seen[v] = true
		selects = append(selects, ident.Quote(physical)+" AS "+ident.Quote(v))
		columns = append(columns, v)
	}

	order := make([]string, len(ids))
	for i, col := range ids {
		order[i] = ident.Quote(col)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString(" FROM ")
	b.WriteString(ident.Quote(table))
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))
	b.WriteString(" LIMIT ? OFFSET ?")

	return Statement{
		SQL:     b.String(),
		Args:    []any{limit, offset},
		Columns: columns,
	}, nil
}

// IDExpression returns the SQL expression for a row identifier. A single
// column is referenced directly; several are cast to text and joined with
// "_" in declared order.
func IDExpression(ids schema.IdentifierSpec) string {
	if len(ids) == 1 {
		return ident.Quote(ids[0])
	}
	parts := make([]string, len(ids))
	for i, col := range ids {
		parts[i] = "CAST(" + ident.Quote(col) + " AS VARCHAR)"
	}
	return strings.Join(parts, " || '_' || ")
}
