package duckdb

import "github.com/malbeclabs/census/census/pkg/ident"

// Dialect renders DuckDB statements.
type Dialect struct{}

func (Dialect) DescribeTable(table string) string {
	return "DESCRIBE " + ident.Quote(table)
}

func (Dialect) ListTables() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name"
}

func (Dialect) MaterializeTable(table, source string) string {
	return "CREATE TABLE IF NOT EXISTS " + ident.Quote(table) + " AS SELECT * FROM read_parquet(" + ident.Literal(source) + ")"
}

func (Dialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + ident.Quote(table)
}

// CopyToParquet returns a statement writing the result of query to a
// parquet file at dest.
func CopyToParquet(query, dest string) string {
	return "COPY (" + query + ") TO " + ident.Literal(dest) + " (FORMAT PARQUET)"
}

// ReadCSV returns a query over a CSV file with inferred column types.
func ReadCSV(source string) string {
	return "SELECT * FROM read_csv_auto(" + ident.Literal(source) + ")"
}
