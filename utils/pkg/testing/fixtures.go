package censustesting

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/malbeclabs/census/census/pkg/catalog"
	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"github.com/malbeclabs/census/census/pkg/ident"
	"github.com/stretchr/testify/require"
)

// Dataset types written by WriteFixtures.
const (
	Population = "population"
	VD         = "vd"
)

// ConfigFile is the name of the configuration document in a fixture dir.
const ConfigFile = "data-config.json"

// Shrids are the shrid2 values of every shrid fixture table, in sort order.
var Shrids = []string{"11-01-001", "11-01-002", "11-02-003"}

// ShridTotal is the population tot_p value of shrid row i in year.
func ShridTotal(year, i int) int {
	return (i+1)*100 + year%100
}

// ShridMales is the population tot_m value of shrid row i.
func ShridMales(i int) int {
	return (i + 1) * 50
}

// DistrictIDs are the composite ids of the district fixture tables.
var DistrictIDs = []string{"1_1", "1_2", "2_1"}

// DistrictTotal is the population tot_p value of district row i in year.
func DistrictTotal(year, i int) int {
	return (i+1)*1000 + year%100
}

// SubdistrictIDs are the composite ids of the subdistrict fixture tables.
var SubdistrictIDs = []string{"1_1_1", "1_1_2", "2_1_1"}

// Fixtures is a directory of parquet files and the configuration
// describing them.
type Fixtures struct {
	Dir        string
	ConfigPath string
}

// Document returns the configuration written for the fixtures.
func Document() catalog.Document {
	return catalog.Document{DataFiles: []catalog.FileEntry{
		{
			Type:        Population,
			Description: "Population Census Abstract",
			Years:       []int{1991, 2001, 2011},
			AvailableLevels: map[string][]string{
				"1991": {"shrid", "district"},
				"2001": {"shrid", "district", "subdistrict", "constituency_pre_2008"},
				"2011": {"shrid", "district", "subdistrict", "constituency_post_2008"},
			},
			AggregationLevels: map[string]string{
				"shrid":                  "pc{year_short}_pca_clean_shrid.parquet",
				"district":               "pc{year_short}_pca_clean_pc{year_short}dist.parquet",
				"subdistrict":            "pc{year_short}_pca_clean_pc{year_short}subdist.parquet",
				"constituency_pre_2008":  "pc{year_short}_pca_clean_con07.parquet",
				"constituency_post_2008": "pc{year_short}_pca_clean_con08.parquet",
			},
			PathTemplate: "processed/pc{year_short}/{filename}",
			ColumnPrefix: "pc{year_short}_pca",
		},
		{
			Type:        VD,
			Description: "Village Directory",
			Years:       []int{2011},
			AvailableLevels: map[string][]string{
				"2011": {"shrid"},
			},
			AggregationLevels: map[string]string{
				"shrid": "pc{year_short}_vd_clean_shrid.parquet",
			},
			PathTemplate: "processed/pc{year_short}/{filename}",
			ColumnPrefix: "pc{year_short}_vd",
		},
	}}
}

// WriteFixtures writes every fixture table as parquet under dir and the
// matching configuration to dir/data-config.json.
func WriteFixtures(t testing.TB, dir string) *Fixtures {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()

	for _, year := range []int{1991, 2001, 2011} {
		yy := catalog.YearShort(year)
		p := "pc" + yy + "_pca_"
		out := filepath.Join(dir, "processed", "pc"+yy)
		require.NoError(t, os.MkdirAll(out, 0o755))

		var shrids [][]any
		for i, shrid := range Shrids {
			total := ShridTotal(year, i)
			var children any = (i + 1) * 10
			if i == len(Shrids)-1 {
				children = nil
			}
			shrids = append(shrids, []any{shrid, i/2 + 1, total, ShridMales(i), total - ShridMales(i), children})
		}
		writeParquet(t, db, filepath.Join(out, p+"clean_shrid.parquet"),
			[]string{"shrid2", "pc" + yy + "_state_id", p + "tot_p", p + "tot_m", p + "tot_f", p + "p_06"}, shrids)

		var districts [][]any
		for i, id := range DistrictIDs {
			parts := strings.Split(id, "_")
			districts = append(districts, []any{atoi(parts[0]), atoi(parts[1]), DistrictTotal(year, i), (i + 1) * 500})
		}
		writeParquet(t, db, filepath.Join(out, p+"clean_pc"+yy+"dist.parquet"),
			[]string{"pc" + yy + "_state_id", "pc" + yy + "_district_id", p + "tot_p", p + "tot_m"}, districts)

		if year == 1991 {
			continue
		}

		var subdistricts [][]any
		for i, id := range SubdistrictIDs {
			parts := strings.Split(id, "_")
			subdistricts = append(subdistricts, []any{atoi(parts[0]), atoi(parts[1]), atoi(parts[2]), (i + 1) * 20})
		}
		writeParquet(t, db, filepath.Join(out, p+"clean_pc"+yy+"subdist.parquet"),
			[]string{"pc" + yy + "_state_id", "pc" + yy + "_district_id", "pc" + yy + "_subdistrict_id", p + "tot_p"}, subdistricts)

		acColumn, acFile := "ac07_id", "clean_con07.parquet"
		if year == 2011 {
			acColumn, acFile = "ac08_id", "clean_con08.parquet"
		}
		writeParquet(t, db, filepath.Join(out, p+acFile),
			[]string{acColumn, p + "tot_p"}, [][]any{{"AC-1", 5000}, {"AC-2", 6000}})
	}

	writeParquet(t, db, filepath.Join(dir, "processed", "pc11", "pc11_vd_clean_shrid.parquet"),
		[]string{"shrid2", "pc11_vd_power_dom", "pc11_vd_tar_road"},
		[][]any{{Shrids[0], 1, 0}, {Shrids[1], 0, 1}, {Shrids[2], 1, 1}})

	data, err := json.MarshalIndent(Document(), "", "  ")
	require.NoError(t, err)
	configPath := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(configPath, data, 0o644))

	return &Fixtures{Dir: dir, ConfigPath: configPath}
}

func writeParquet(t testing.TB, db *sql.DB, dest string, columns []string, rows [][]any) {
	t.Helper()

	tuples := make([]string, len(rows))
	for i, row := range rows {
		vals := make([]string, len(row))
		for j, v := range row {
			vals[j] = sqlValue(v)
		}
		tuples[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ident.Quote(c)
	}

	query := fmt.Sprintf("SELECT * FROM (VALUES %s) AS t(%s)", strings.Join(tuples, ", "), strings.Join(quoted, ", "))
	_, err := db.Exec(duckdb.CopyToParquet(query, dest))
	require.NoError(t, err)
}

func sqlValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return ident.Literal(t)
	case int:
		return strconv.Itoa(t)
	default:
		return ident.Literal(fmt.Sprint(t))
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
