package ident

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCensus_Ident_Quote(t *testing.T) {
	t.Parallel()

	require.Equal(t, `"pc01_pca_tot_p"`, Quote("pc01_pca_tot_p"))
	require.Equal(t, `"a""b"`, Quote(`a"b`))
	require.Equal(t, `"x""; DROP TABLE t; --"`, Quote(`x"; DROP TABLE t; --`))
}

func TestCensus_Ident_Literal(t *testing.T) {
	t.Parallel()

	require.Equal(t, `'/data/pc01.parquet'`, Literal("/data/pc01.parquet"))
	require.Equal(t, `'it''s'`, Literal("it's"))
}
