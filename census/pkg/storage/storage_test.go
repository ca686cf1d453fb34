package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/malbeclabs/census/utils/pkg/retry"
	censustesting "github.com/malbeclabs/census/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string
	failures int
	calls    []string
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	f.calls = append(f.calls, key)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestCensus_Storage_LocalResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "processed", "pc11"), 0o755))
	file := filepath.Join(dir, "processed", "pc11", "pc11_pca_clean_shrid.parquet")
	require.NoError(t, os.WriteFile(file, []byte("PAR1"), 0o644))

	l := Local{BaseDir: dir}
	got, err := l.Resolve(t.Context(), "processed/pc11/pc11_pca_clean_shrid.parquet")
	require.NoError(t, err)
	require.Equal(t, file, got)

	got, err = l.Resolve(t.Context(), file)
	require.NoError(t, err)
	require.Equal(t, file, got)

	_, err = l.Resolve(t.Context(), "processed/pc91/missing.parquet")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCensus_Storage_S3URI(t *testing.T) {
	t.Parallel()

	s, err := NewS3(S3Config{Logger: censustesting.NewLogger(), Bucket: "census-data", Prefix: "/census/"})
	require.NoError(t, err)

	require.Equal(t, "census/pc01_pca_clean_shrid.parquet", s.Key("processed/pc01/pc01_pca_clean_shrid.parquet"))
	got, err := s.Resolve(t.Context(), "processed/pc01/pc01_pca_clean_shrid.parquet")
	require.NoError(t, err)
	require.Equal(t, "s3://census-data/census/pc01_pca_clean_shrid.parquet", got)

	s, err = NewS3(S3Config{Logger: censustesting.NewLogger(), Bucket: "census-data"})
	require.NoError(t, err)
	require.Equal(t, "pc01_pca_clean_shrid.parquet", s.Key("processed/pc01/pc01_pca_clean_shrid.parquet"))
}

func TestCensus_Storage_S3DownloadAndCache(t *testing.T) {
	t.Parallel()

	client := &fakeS3{
		objects:  map[string]string{"census-data/census/pc11_pca_clean_shrid.parquet": "PAR1-data"},
		failures: 1,
	}
	cache := t.TempDir()
	s, err := NewS3(S3Config{
		Logger:   censustesting.NewLogger(),
		Client:   client,
		Bucket:   "census-data",
		Prefix:   "census",
		Download: true,
		CacheDir: cache,
		Retry:    fastRetry(),
	})
	require.NoError(t, err)

	got, err := s.Resolve(t.Context(), "processed/pc11/pc11_pca_clean_shrid.parquet")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cache, "census", "pc11_pca_clean_shrid.parquet"), got)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	require.Equal(t, "PAR1-data", string(data))
	require.Len(t, client.calls, 2)

	// Served from the cache.
	_, err = s.Resolve(t.Context(), "processed/pc11/pc11_pca_clean_shrid.parquet")
	require.NoError(t, err)
	require.Len(t, client.calls, 2)

	entries, err := os.ReadDir(filepath.Join(cache, "census"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCensus_Storage_S3MissingObject(t *testing.T) {
	t.Parallel()

	client := &fakeS3{objects: map[string]string{}}
	s, err := NewS3(S3Config{
		Logger:   censustesting.NewLogger(),
		Client:   client,
		Bucket:   "census-data",
		Download: true,
		CacheDir: t.TempDir(),
		Retry:    fastRetry(),
	})
	require.NoError(t, err)

	_, err = s.Resolve(t.Context(), "pc91_pca_clean_shrid.parquet")
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, client.calls, 1)
}

func TestCensus_Storage_S3ConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := S3Config{Logger: censustesting.NewLogger()}
	require.Error(t, cfg.Validate())

	cfg = S3Config{Logger: censustesting.NewLogger(), Bucket: "b", Download: true}
	require.Error(t, cfg.Validate())

	cfg = S3Config{Logger: censustesting.NewLogger(), Bucket: "b", Download: true, Client: &fakeS3{}}
	require.NoError(t, cfg.Validate())
	require.NotEmpty(t, cfg.CacheDir)
	require.Equal(t, retry.DefaultConfig().MaxAttempts, cfg.Retry.MaxAttempts)
}

func TestCensus_Storage_NewLocalAndUnknownMode(t *testing.T) {
	t.Parallel()

	r, err := New(t.Context(), Options{Logger: censustesting.NewLogger(), Mode: ModeLocal, BaseDir: "/data"})
	require.NoError(t, err)
	require.Equal(t, Local{BaseDir: "/data"}, r)

	_, err = New(t.Context(), Options{Logger: censustesting.NewLogger(), Mode: "gcs"})
	require.Error(t, err)
}

func TestCensus_Storage_DetectMode(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	require.Equal(t, ModeLocal, DetectMode())
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "census-api")
	require.Equal(t, ModeS3, DetectMode())
}
