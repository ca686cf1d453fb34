package query_test

import (
	"encoding/json"
	"testing"

	"github.com/malbeclabs/census/census/pkg/catalog"
	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"github.com/malbeclabs/census/census/pkg/executor"
	"github.com/malbeclabs/census/census/pkg/loader"
	"github.com/malbeclabs/census/census/pkg/query"
	"github.com/malbeclabs/census/census/pkg/schema"
	"github.com/malbeclabs/census/census/pkg/storage"
	censustesting "github.com/malbeclabs/census/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *query.Service {
	t.Helper()
	log := censustesting.NewLogger()
	fx := censustesting.WriteFixtures(t, t.TempDir())

	reg, err := catalog.Load(fx.ConfigPath)
	require.NoError(t, err)
	resolver, err := schema.NewResolver(reg)
	require.NoError(t, err)

	eng, err := duckdb.New(t.Context(), duckdb.Config{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	exec, err := executor.New(executor.Config{Logger: log, Engine: eng, Workers: 4})
	require.NoError(t, err)
	t.Cleanup(exec.Close)

	l, err := loader.New(loader.Config{Logger: log, Resolver: resolver, Storage: storage.Local{BaseDir: reg.Dir()}, Executor: exec})
	require.NoError(t, err)
	report, err := l.EnsureTables(t.Context())
	require.NoError(t, err)
	require.Empty(t, report.Failed)

	svc, err := query.NewService(query.Config{Logger: log, Resolver: resolver, Executor: exec})
	require.NoError(t, err)
	return svc
}

func keys(row map[string]any) []string {
	out := make([]string, 0, len(row))
	for k := range row {
		out = append(out, k)
	}
	return out
}

func TestCensus_Query_E2E_ShridLimit(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	records, err := svc.Query(t.Context(), query.Request{
		DatasetType: censustesting.Population,
		Year:        2001,
		Level:       schema.LevelShrid,
		Variables:   []string{"tot_p"},
		Limit:       2,
		Offset:      0,
	})
	require.NoError(t, err)
	require.Len(t, records.Rows, 2)
	for i, row := range records.Rows {
		require.ElementsMatch(t, []string{"id", "tot_p"}, keys(row))
		require.Equal(t, censustesting.Shrids[i], row["id"])
		require.EqualValues(t, censustesting.ShridTotal(2001, i), row["tot_p"])
	}
}

func TestCensus_Query_E2E_UnknownVariableDropped(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	records, err := svc.Query(t.Context(), query.Request{
		DatasetType: censustesting.Population,
		Year:        2001,
		Level:       schema.LevelShrid,
		Variables:   []string{"nonexistent", "tot_p"},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"id", "tot_p"}, records.Columns)
	require.Len(t, records.Rows, len(censustesting.Shrids))
	for _, row := range records.Rows {
		require.ElementsMatch(t, []string{"id", "tot_p"}, keys(row))
	}
}

func TestCensus_Query_E2E_CompositeIdentifiers(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	records, err := svc.Query(t.Context(), query.Request{
		DatasetType: censustesting.Population,
		Year:        2011,
		Level:       schema.LevelDistrict,
		Variables:   []string{"tot_p"},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, records.Rows, len(censustesting.DistrictIDs))
	for i, row := range records.Rows {
		require.Equal(t, censustesting.DistrictIDs[i], row["id"])
		require.EqualValues(t, censustesting.DistrictTotal(2011, i), row["tot_p"])
	}

	records, err = svc.Query(t.Context(), query.Request{
		DatasetType: censustesting.Population,
		Year:        2001,
		Level:       schema.LevelSubdistrict,
		Variables:   []string{"tot_p"},
		Limit:       10,
	})
	require.NoError(t, err)
	ids := make([]any, len(records.Rows))
	for i, row := range records.Rows {
		ids[i] = row["id"]
	}
	require.Equal(t, []any{"1_1_1", "1_1_2", "2_1_1"}, ids)
}

func TestCensus_Query_E2E_OffsetPaging(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	var seen []any
	for offset := 0; offset < len(censustesting.Shrids); offset++ {
		records, err := svc.Query(t.Context(), query.Request{
			DatasetType: censustesting.Population,
			Year:        1991,
			Level:       schema.LevelShrid,
			Variables:   []string{"tot_m", "p_06"},
			Limit:       1,
			Offset:      offset,
		})
		require.NoError(t, err)
		require.Len(t, records.Rows, 1)
		seen = append(seen, records.Rows[0]["id"])
	}
	require.Equal(t, []any{censustesting.Shrids[0], censustesting.Shrids[1], censustesting.Shrids[2]}, seen)

	records, err := svc.Query(t.Context(), query.Request{
		DatasetType: censustesting.Population,
		Year:        1991,
		Level:       schema.LevelShrid,
		Limit:       10,
		Offset:      100,
	})
	require.NoError(t, err)
	require.Empty(t, records.Rows)
}

func TestCensus_Query_E2E_ListVariables(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	vars, err := svc.ListVariables(t.Context(), censustesting.Population, 2011, schema.LevelShrid)
	require.NoError(t, err)
	require.Equal(t, []string{"tot_p", "tot_m", "tot_f", "p_06"}, vars)

	vars, err = svc.ListVariables(t.Context(), censustesting.Population, 2011, schema.LevelDistrict)
	require.NoError(t, err)
	require.Equal(t, []string{"tot_p", "tot_m"}, vars)

	vars, err = svc.ListVariables(t.Context(), censustesting.VD, 2011, schema.LevelShrid)
	require.NoError(t, err)
	require.Equal(t, []string{"power_dom", "tar_road"}, vars)
}

func TestCensus_Query_E2E_MultiYear(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	result, err := svc.QueryYears(t.Context(), query.MultiYearRequest{
		DatasetType: censustesting.Population,
		Years:       []int{2001, 2011},
		Level:       schema.LevelShrid,
		Variables:   []string{"tot_p"},
		Limit:       1,
	})
	require.NoError(t, err)
	require.Len(t, result.Years, 2)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	var grouped []struct {
		Year int              `json:"year"`
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &grouped))
	require.Len(t, grouped, 2)
	require.Equal(t, 2001, grouped[0].Year)
	require.Equal(t, 2011, grouped[1].Year)
	require.EqualValues(t, censustesting.ShridTotal(2011, 0), grouped[1].Data[0]["tot_p"])

	result, err = svc.QueryYears(t.Context(), query.MultiYearRequest{
		DatasetType: censustesting.Population,
		Years:       []int{2011},
		Level:       schema.LevelShrid,
		Variables:   []string{"tot_p"},
		Limit:       2,
	})
	require.NoError(t, err)
	data, err = json.Marshal(result)
	require.NoError(t, err)
	var bare []map[string]any
	require.NoError(t, json.Unmarshal(data, &bare))
	require.Len(t, bare, 2)
	require.Equal(t, censustesting.Shrids[0], bare[0]["id"])
}
