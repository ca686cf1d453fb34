package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/census/api/config"
	"github.com/malbeclabs/census/api/handlers"
	apimetrics "github.com/malbeclabs/census/api/metrics"
	"github.com/malbeclabs/census/api/server"
	"github.com/malbeclabs/census/census/pkg/catalog"
	"github.com/malbeclabs/census/census/pkg/engine"
	"github.com/malbeclabs/census/census/pkg/engine/clickhouse"
	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"github.com/malbeclabs/census/census/pkg/executor"
	"github.com/malbeclabs/census/census/pkg/loader"
	"github.com/malbeclabs/census/census/pkg/metrics"
	"github.com/malbeclabs/census/census/pkg/query"
	"github.com/malbeclabs/census/census/pkg/schema"
	"github.com/malbeclabs/census/census/pkg/storage"
	"github.com/malbeclabs/census/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Verbose)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     version,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized", "environment", cfg.SentryEnvironment)
	}

	apimetrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg, err := catalog.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	resolver, err := schema.NewResolver(reg)
	if err != nil {
		return err
	}
	log.Info("catalog loaded", "path", reg.Path(), "datasets", reg.Types())

	eng, err := newEngine(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	exec, err := executor.New(executor.Config{
		Logger:    log,
		Engine:    eng,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}
	defer exec.Close()

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = reg.Dir()
	}
	store, err := storage.New(ctx, storage.Options{
		Logger:   log,
		Mode:     cfg.Storage,
		BaseDir:  dataDir,
		Bucket:   cfg.S3Bucket,
		Prefix:   cfg.S3Prefix,
		Download: cfg.S3Download,
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage resolver: %w", err)
	}

	ldr, err := loader.New(loader.Config{
		Logger:   log,
		Resolver: resolver,
		Storage:  store,
		Executor: exec,
	})
	if err != nil {
		return fmt.Errorf("failed to create loader: %w", err)
	}

	svc, err := query.NewService(query.Config{Logger: log, Resolver: resolver, Executor: exec})
	if err != nil {
		return fmt.Errorf("failed to create query service: %w", err)
	}
	h, err := handlers.NewHandler(log, svc)
	if err != nil {
		return err
	}

	var limiter *handlers.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = handlers.PerMinute(cfg.RateLimitPerMinute)
		defer limiter.Stop()
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		VersionInfo:     handlers.VersionInfo{Version: version, Commit: commit, Date: date},
		Handler:         h,
		RateLimiter:     limiter,
		AllowedOrigins:  cfg.AllowedOrigins,
		QueryTimeout:    cfg.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		if cfg.EnsureOnRun {
			if err := ensureTables(ctx, log, ldr); err != nil {
				log.Error("census tables not loaded", "error", err)
				return
			}
		}
		srv.SetReady(true)
	}()

	go reloadOnHangup(ctx, log, reg, ldr, cfg.EnsureOnRun)

	return srv.Run(ctx)
}

func newEngine(ctx context.Context, log *slog.Logger, cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case clickhouse.Name:
		eng, err := clickhouse.New(ctx, clickhouse.Config{
			Logger:   log,
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Secure:   cfg.ClickHouseSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create clickhouse engine: %w", err)
		}
		return eng, nil
	default:
		eng, err := duckdb.New(ctx, duckdb.Config{
			Logger:      log,
			Path:        cfg.DBPath,
			Threads:     cfg.DBThreads,
			MemoryLimit: cfg.DBMemoryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create duckdb engine: %w", err)
		}
		return eng, nil
	}
}

func ensureTables(ctx context.Context, log *slog.Logger, ldr *loader.Loader) error {
	report, err := ldr.EnsureTables(ctx)
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		log.Warn("census table unavailable", "table", f.Table.Name, "path", f.Table.Path, "error", f.Err)
	}
	return nil
}

// reloadOnHangup re-reads the catalog on SIGHUP and materializes any tables
// it adds.
func reloadOnHangup(ctx context.Context, log *slog.Logger, reg *catalog.Registry, ldr *loader.Loader, ensure bool) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			err := reg.Reload()
			metrics.RecordCatalogReload(err)
			if err != nil {
				log.Error("catalog reload failed, keeping previous catalog", "path", reg.Path(), "error", err)
				continue
			}
			log.Info("catalog reloaded", "path", reg.Path(), "datasets", reg.Types())
			if ensure {
				if err := ensureTables(ctx, log, ldr); err != nil {
					log.Error("failed to ensure tables after reload", "error", err)
				}
			}
		}
	}
}
