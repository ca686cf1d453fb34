package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/census/census/pkg/metrics"
	"github.com/malbeclabs/census/utils/pkg/retry"
)

// ObjectGetter is the subset of the S3 client used to fetch data files.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Config struct {
	Logger *slog.Logger
	Client ObjectGetter
	Bucket string
	// Prefix is prepended to the file's base name to form the object key.
	Prefix string
	// Download fetches objects into CacheDir and resolves to the local
	// copy. Without it the s3:// URI is returned for engines that read
	// object storage directly.
	Download bool
	CacheDir string
	Retry    retry.Config
	Clock    clockwork.Clock
}

func (cfg *S3Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.Download {
		if cfg.Client == nil {
			return errors.New("client is required when downloading")
		}
		if cfg.CacheDir == "" {
			cfg.CacheDir = filepath.Join(os.TempDir(), "census-cache")
		}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// S3 resolves data files stored flat under a bucket prefix.
type S3 struct {
	log *slog.Logger
	cfg S3Config
}

func NewS3(cfg S3Config) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &S3{log: cfg.Logger, cfg: cfg}, nil
}

// Key returns the object key for a storage path: the prefix joined with the
// path's base name.
func (s *S3) Key(p string) string {
	base := path.Base(filepath.ToSlash(p))
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return base
	}
	return prefix + "/" + base
}

// URI returns the s3:// URI of a storage path.
func (s *S3) URI(p string) string {
	return "s3://" + s.cfg.Bucket + "/" + s.Key(p)
}

func (s *S3) Resolve(ctx context.Context, p string) (string, error) {
	if !s.cfg.Download {
		return s.URI(p), nil
	}

	key := s.Key(p)
	local := filepath.Join(s.cfg.CacheDir, filepath.FromSlash(key))
	if _, err := os.Stat(local); err == nil {
		metrics.StorageFetchesTotal.WithLabelValues("cached").Inc()
		return local, nil
	}

	start := s.cfg.Clock.Now()
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		return s.download(ctx, key, local)
	})
	if err != nil {
		metrics.StorageFetchesTotal.WithLabelValues("error").Inc()
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, s.URI(p))
		}
		return "", fmt.Errorf("failed to fetch %s: %w", s.URI(p), err)
	}
	metrics.StorageFetchesTotal.WithLabelValues("downloaded").Inc()
	metrics.StorageFetchDuration.Observe(s.cfg.Clock.Since(start).Seconds())
	s.log.Info("storage: downloaded data file", "bucket", s.cfg.Bucket, "key", key, "path", local)
	return local, nil
}

// download writes the object to a temporary file next to dest and renames
// it into place, so a partial download is never mistaken for a cached copy.
func (s *S3) download(ctx context.Context, key, dest string) error {
	out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
