package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDoc = `{
  "data_files": [
    {
      "type": "population",
      "years": [1991, 2001, 2011],
      "available_levels": {
        "1991": ["shrid", "district"],
        "2001": ["shrid", "district", "subdistrict"],
        "2011": ["shrid", "district", "subdistrict"]
      },
      "aggregation_levels": {
        "shrid": "pc{year_short}_pca_clean_shrid.parquet",
        "district": "pc{year_short}_pca_clean_pc{year_short}dist.parquet",
        "subdistrict": "pc{year_short}_pca_clean_pc{year_short}subdist.parquet"
      },
      "path_template": "shrug-pca{year_short}-parquet/{filename}",
      "column_prefix": "pc{year_short}_pca"
    },
    {
      "type": "village",
      "years": [2011],
      "available_levels": {"2011": ["shrid"]},
      "aggregation_levels": {"shrid": "pc{year_short}_vd_clean_shrid.parquet"},
      "path_template": "shrug-vd{year_short}-parquet/{filename}"
    }
  ]
}`

func TestCensus_Catalog_Parse(t *testing.T) {
	t.Parallel()

	r, err := Parse([]byte(testDoc), FormatJSON)
	require.NoError(t, err)
	require.Equal(t, []string{"population", "village"}, r.Types())

	pop, err := r.Get("population")
	require.NoError(t, err)
	require.Equal(t, []int{1991, 2001, 2011}, pop.Years)
	require.Equal(t, []string{"shrid", "district"}, pop.AvailableLevels[1991])
	require.True(t, pop.SupportsYear(2001))
	require.False(t, pop.SupportsYear(1981))
	require.Equal(t, "pc{year_short}_pca", pop.ColumnPrefix)

	_, err = r.Get("missing")
	require.ErrorIs(t, err, ErrUnknownDatasetType)
}

func TestCensus_Catalog_ParseYAML(t *testing.T) {
	t.Parallel()

	doc := `
data_files:
  - type: population
    years: [2011]
    available_levels:
      "2011": [shrid]
    aggregation_levels:
      shrid: pc{year_short}_pca_clean_shrid.parquet
    path_template: "{filename}"
`
	r, err := Parse([]byte(doc), FormatYAML)
	require.NoError(t, err)
	d, err := r.Get("population")
	require.NoError(t, err)
	require.Equal(t, []string{"shrid"}, d.AvailableLevels[2011])
}

func TestCensus_Catalog_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed":          `{"data_files": [`,
		"empty":              `{"data_files": []}`,
		"missing type":       `{"data_files": [{"years": [2011], "path_template": "x"}]}`,
		"missing years":      `{"data_files": [{"type": "p", "path_template": "x"}]}`,
		"missing path":       `{"data_files": [{"type": "p", "years": [2011]}]}`,
		"level without file": `{"data_files": [{"type": "p", "years": [2011], "path_template": "x", "available_levels": {"2011": ["district"]}, "aggregation_levels": {}}]}`,
		"year not in years":  `{"data_files": [{"type": "p", "years": [2011], "path_template": "x", "available_levels": {"2001": ["shrid"]}, "aggregation_levels": {"shrid": "a"}}]}`,
		"bad year key":       `{"data_files": [{"type": "p", "years": [2011], "path_template": "x", "available_levels": {"y2k": ["shrid"]}, "aggregation_levels": {"shrid": "a"}}]}`,
		"unknown level":      `{"data_files": [{"type": "p", "years": [2011], "path_template": "x", "aggregation_levels": {"block": "a"}}]}`,
		"duplicate type":     `{"data_files": [{"type": "p", "years": [2011], "path_template": "x"}, {"type": "p", "years": [2011], "path_template": "x"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc), FormatJSON)
			require.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestCensus_Catalog_LoadAndReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data-config.json")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, dir, r.Dir())
	require.Len(t, r.All(), 2)

	// A broken file keeps the previous snapshot.
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	require.ErrorIs(t, r.Reload(), ErrConfig)
	require.Len(t, r.Types(), 2)

	single := `{"data_files": [{"type": "district", "years": [2011], "path_template": "{filename}"}]}`
	require.NoError(t, os.WriteFile(path, []byte(single), 0o644))
	require.NoError(t, r.Reload())
	require.Equal(t, []string{"district"}, r.Types())
}

func TestCensus_Catalog_LoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrConfig)
}

func TestCensus_Catalog_Render(t *testing.T) {
	t.Parallel()

	require.Equal(t, "91", YearShort(1991))
	require.Equal(t, "shrug-pca11-parquet/pc11_pca_clean_shrid.parquet",
		Render("shrug-pca{year_short}-parquet/{filename}", 2011, "pc11_pca_clean_shrid.parquet"))
	require.Equal(t, "census/2001/x", Render("census/{year}/{filename}", 2001, "x"))
}
