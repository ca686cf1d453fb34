package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"golang.org/x/sync/errgroup"
)

// ConvertConfig configures a CSV to parquet conversion run.
type ConvertConfig struct {
	// DataDir holds raw/<folder>/*.csv; output goes to
	// processed/<folder>/*.parquet.
	DataDir        string
	MaxConcurrency int
	DryRun         bool
}

// ConvertCSV converts every raw CSV file to parquet with DuckDB's type
// inference and returns the written paths.
func ConvertCSV(ctx context.Context, log *slog.Logger, out io.Writer, cfg ConvertConfig) ([]string, error) {
	rawDir := filepath.Join(cfg.DataDir, "raw")
	processedDir := filepath.Join(cfg.DataDir, "processed")

	folders, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawDir, err)
	}

	type conversion struct{ src, dest string }
	var jobs []conversion
	for _, folder := range folders {
		if !folder.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(rawDir, folder.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".csv") {
				continue
			}
			name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())) + ".parquet"
			jobs = append(jobs, conversion{
				src:  filepath.Join(rawDir, folder.Name(), f.Name()),
				dest: filepath.Join(processedDir, folder.Name(), name),
			})
		}
	}

	if cfg.DryRun {
		for _, j := range jobs {
			fmt.Fprintf(out, "[DRY RUN] %s -> %s\n", j.src, j.dest)
		}
		return nil, nil
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No CSV files found")
		return nil, nil
	}

	eng, err := duckdb.New(ctx, duckdb.Config{Logger: log})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	var (
		mu      sync.Mutex
		written []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.MaxConcurrency, 1))
	for _, j := range jobs {
		g.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(j.dest), 0o755); err != nil {
				return err
			}
			conn, err := eng.Conn(gctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := conn.Exec(gctx, duckdb.CopyToParquet(duckdb.ReadCSV(j.src), j.dest)); err != nil {
				return fmt.Errorf("failed to convert %s: %w", j.src, err)
			}
			log.Info("admin: converted csv", "source", j.src, "dest", j.dest)

			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "  ✓ Converted %s\n", j.dest)
			written = append(written, j.dest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return written, err
	}
	return written, nil
}
