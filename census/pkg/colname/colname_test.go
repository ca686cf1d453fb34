package colname

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCensus_Colname_ToCanonical(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"pc01_pca_tot_p":      "tot_p",
		"pc11_pca_p_06":       "p_06",
		"pc91_pca_tot_m":      "tot_m",
		"pc01_pca_x":          "x",
		"pc11_pca_idle_hours": "idle_hours",
		"pc11_state_id":       "pc11_state_id",
		"pc01_district_id":    "pc01_district_id",
		"ac08_id":             "ac08_id",
		"shrid2":              "shrid2",
		"tot_p":               "tot_p",
		"pc11_state_name":     "pc11_state_name",
	}
	for physical, want := range cases {
		require.Equal(t, want, ToCanonical(physical), physical)
	}
}

func TestCensus_Colname_IsIdentifier(t *testing.T) {
	t.Parallel()

	require.True(t, IsIdentifier("pc11_state_id"))
	require.True(t, IsIdentifier("pc11_subdistrict_id"))
	require.True(t, IsIdentifier("ac07_id"))
	require.True(t, IsIdentifier("pc01_district"))
	require.False(t, IsIdentifier("shrid2"))
	require.False(t, IsIdentifier("pc01_pca_tot_p"))
	// Four segments are never identifier-like, even with an _id substring.
	require.False(t, IsIdentifier("pc11_pca_idle_hours"))
	require.False(t, IsIdentifier("pc11_pca_district_name"))
}

func TestCensus_Colname_Idempotent(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"shrid2", "pc11_state_id", "ac08_id", "pc01_pca_tot_p", "p_06"} {
		once := ToCanonical(name)
		require.Equal(t, once, ToCanonical(once), name)
	}
}

func TestCensus_Colname_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := Codec{Prefix: "pc01_pca"}
	for _, physical := range []string{"pc01_pca_tot_p", "pc01_pca_p_lit", "pc01_pca_main_al_p"} {
		require.False(t, IsIdentifier(physical))
		require.Equal(t, physical, codec.ToPhysical(codec.ToCanonical(physical)))
	}

	require.Equal(t, "pc01_state_id", codec.ToPhysical("pc01_state_id"))
	require.Equal(t, "tot_p", Codec{}.ToPhysical("tot_p"))
}

func TestCensus_Colname_BuildMapping(t *testing.T) {
	t.Parallel()

	columns := []string{
		"pc11_state_id",
		"pc11_district_id",
		"pc11_pca_tot_p",
		"pc11_pca_tot_m",
		"pc11_vd_tot_p",
		"shrid2",
	}
	m := BuildMapping(columns, "shrid2")

	require.Equal(t, []string{"tot_p", "tot_m"}, m.Variables())

	p, ok := m.Physical("tot_p")
	require.True(t, ok)
	require.Equal(t, "pc11_pca_tot_p", p)

	p, ok = m.Physical("pc11_state_id")
	require.True(t, ok)
	require.Equal(t, "pc11_state_id", p)

	_, ok = m.Physical("nonexistent")
	require.False(t, ok)
	require.Equal(t, 5, m.Len())
}
