package compiler

import (
	"testing"

	"github.com/malbeclabs/census/census/pkg/colname"
	"github.com/malbeclabs/census/census/pkg/schema"
	"github.com/stretchr/testify/require"
)

func testMapping() colname.Mapping {
	return colname.BuildMapping([]string{
		"shrid2",
		"pc11_state_id",
		"pc11_district_id",
		"pc11_pca_tot_p",
		"pc11_pca_tot_m",
		"pc11_pca_tot_f",
	})
}

func TestCensus_Compiler_SingleIdentifier(t *testing.T) {
	t.Parallel()

	stmt, err := Compile("pc11_pca_clean_shrid", schema.IdentifierSpec{"shrid2"}, testMapping(), []string{"tot_p"}, 2, 0)
	require.NoError(t, err)
	require.Equal(t,
		`SELECT "shrid2" AS "id", "pc11_pca_tot_p" AS "tot_p" FROM "pc11_pca_clean_shrid" ORDER BY "shrid2" LIMIT ? OFFSET ?`,
		stmt.SQL)
	require.Equal(t, []any{2, 0}, stmt.Args)
	require.Equal(t, []string{"id", "tot_p"}, stmt.Columns)
}

func TestCensus_Compiler_CompositeIdentifier(t *testing.T) {
	t.Parallel()

	ids := schema.IdentifierSpec{"pc11_state_id", "pc11_district_id"}
	stmt, err := Compile("pc11_pca_clean_pc11dist", ids, testMapping(), []string{"tot_m"}, 10, 20)
	require.NoError(t, err)
	require.Equal(t,
		`SELECT CAST("pc11_state_id" AS VARCHAR) || '_' || CAST("pc11_district_id" AS VARCHAR) AS "id", `+
			`"pc11_pca_tot_m" AS "tot_m" FROM "pc11_pca_clean_pc11dist" `+
			`ORDER BY "pc11_state_id", "pc11_district_id" LIMIT ? OFFSET ?`,
		stmt.SQL)
	require.Equal(t, []any{10, 20}, stmt.Args)
}

func TestCensus_Compiler_SkipsUnknownAndPreservesOrder(t *testing.T) {
	t.Parallel()

	requested := []string{"tot_f", "nonexistent", "tot_p", "tot_f", "id", "tot_m"}
	stmt, err := Compile("t", schema.IdentifierSpec{"shrid2"}, testMapping(), requested, 5, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "tot_f", "tot_p", "tot_m"}, stmt.Columns)
	require.NotContains(t, stmt.SQL, "nonexistent")
	require.Equal(t, 1, countOccurrences(stmt.SQL, `AS "tot_f"`))
}

func TestCensus_Compiler_NoVariables(t *testing.T) {
	t.Parallel()

	stmt, err := Compile("t", schema.IdentifierSpec{"ac08_id"}, testMapping(), nil, 1, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, stmt.Columns)
}

func TestCensus_Compiler_QuotesIdentifiers(t *testing.T) {
	t.Parallel()

	m := colname.BuildMapping([]string{`pc11_pca_we"ird`})
	stmt, err := Compile(`tab"le`, schema.IdentifierSpec{"shrid2"}, m, []string{`we"ird`}, 1, 0)
	require.NoError(t, err)
	require.Contains(t, stmt.SQL, `FROM "tab""le"`)
	require.Contains(t, stmt.SQL, `"pc11_pca_we""ird" AS "we""ird"`)
}

func TestCensus_Compiler_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Compile("", schema.IdentifierSpec{"shrid2"}, testMapping(), nil, 1, 0)
	require.Error(t, err)
	_, err = Compile("t", nil, testMapping(), nil, 1, 0)
	require.Error(t, err)
	_, err = Compile("t", schema.IdentifierSpec{"shrid2"}, testMapping(), nil, 1, -1)
	require.Error(t, err)
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
