package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	ModeLocal = "local"
	ModeS3    = "s3"
)

// Options selects and configures a resolver.
type Options struct {
	Logger *slog.Logger
	// Mode is "local" or "s3". Empty selects s3 when running as an AWS
	// Lambda function and local otherwise.
	Mode     string
	BaseDir  string
	Bucket   string
	Prefix   string
	Download bool
	CacheDir string
}

// DetectMode returns the storage mode implied by the environment.
func DetectMode() string {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return ModeS3
	}
	return ModeLocal
}

// New builds the resolver for opts. The S3 client is created from the
// default AWS configuration chain.
func New(ctx context.Context, opts Options) (Resolver, error) {
	mode := opts.Mode
	if mode == "" {
		mode = DetectMode()
	}
	switch mode {
	case ModeLocal:
		return Local{BaseDir: opts.BaseDir}, nil
	case ModeS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewS3(S3Config{
			Logger:   opts.Logger,
			Client:   s3.NewFromConfig(awsCfg),
			Bucket:   opts.Bucket,
			Prefix:   opts.Prefix,
			Download: opts.Download,
			CacheDir: opts.CacheDir,
		})
	default:
		return nil, fmt.Errorf("unknown storage mode %q", mode)
	}
}
