package clickhouse

import (
	"strings"

	"github.com/malbeclabs/census/census/pkg/ident"
)

// Dialect renders ClickHouse statements. Census tables are materialized
// into MergeTree tables without a sorting key.
type Dialect struct{}

func (Dialect) DescribeTable(table string) string {
	return "DESCRIBE TABLE " + ident.Quote(table)
}

func (Dialect) ListTables() string {
	return "SELECT name FROM system.tables WHERE database = currentDatabase() ORDER BY name"
}

func (Dialect) MaterializeTable(table, source string) string {
	return "CREATE TABLE IF NOT EXISTS " + ident.Quote(table) +
		" ENGINE = MergeTree ORDER BY tuple() AS SELECT * FROM " + tableFunction(source)
}

func (Dialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + ident.Quote(table)
}

// tableFunction picks the table function able to read source: s3() for
// object storage URIs, url() for HTTP, file() for server-local paths.
func tableFunction(source string) string {
	lit := ident.Literal(source)
	switch {
	case strings.HasPrefix(source, "s3://"):
		return "s3(" + lit + ", 'Parquet')"
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return "url(" + lit + ", 'Parquet')"
	default:
		return "file(" + lit + ", 'Parquet')"
	}
}
