// Package loader materializes the catalog's physical tables in the engine
// from their parquet files.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/census/census/pkg/engine"
	"github.com/malbeclabs/census/census/pkg/metrics"
	"github.com/malbeclabs/census/census/pkg/schema"
	"github.com/malbeclabs/census/census/pkg/storage"
)

// Executor is the subset of the executor the loader needs.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) error
	Tables(ctx context.Context) ([]string, error)
	Dialect() engine.Dialect
}

type Config struct {
	Logger   *slog.Logger
	Resolver *schema.Resolver
	Storage  storage.Resolver
	Executor Executor
	Clock    clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Resolver == nil {
		return errors.New("resolver is required")
	}
	if cfg.Storage == nil {
		return errors.New("storage is required")
	}
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Table is one physical table the catalog declares.
type Table struct {
	DatasetType string
	Year        int
	Level       schema.Level
	Name        string
	// Path is the storage path rendered from the path template.
	Path string
}

// Failure records a table that could not be created.
type Failure struct {
	Table Table
	Err   error
}

// Report summarizes an EnsureTables run.
type Report struct {
	Created []string
	Skipped []string
	Failed  []Failure
}

type Loader struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Loader{log: cfg.Logger, cfg: cfg}, nil
}

// Tables lists every (type, year, level) table in the catalog, in document
// and canonical level order. A table shared by several triples is listed
// once.
func (l *Loader) Tables() ([]Table, error) {
	var out []Table
	seen := map[string]bool{}
	for _, d := range l.cfg.Resolver.Catalog().All() {
		for _, year := range d.Years {
			levels, err := l.cfg.Resolver.AvailableLevels(d.Type, year)
			if err != nil {
				return nil, err
			}
			for _, level := range levels {
				name, err := l.cfg.Resolver.ResolveTable(d.Type, year, level)
				if err != nil {
					return nil, err
				}
				if seen[name] {
					continue
				}
				seen[name] = true
				p, err := l.cfg.Resolver.ResolvePath(d.Type, year, level)
				if err != nil {
					return nil, err
				}
				out = append(out, Table{DatasetType: d.Type, Year: year, Level: level, Name: name, Path: p})
			}
		}
	}
	return out, nil
}

// EnsureTables creates every catalog table that does not exist yet. A table
// that fails to load is logged and reported but does not stop the run; an
// error is returned only when the existing tables cannot be listed.
func (l *Loader) EnsureTables(ctx context.Context) (*Report, error) {
	start := l.cfg.Clock.Now()
	defer func() {
		metrics.LoaderDuration.Observe(l.cfg.Clock.Since(start).Seconds())
	}()

	existing, err := l.cfg.Executor.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables, err := l.Tables()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, t := range tables {
		if slices.Contains(existing, t.Name) {
			report.Skipped = append(report.Skipped, t.Name)
			metrics.LoaderTablesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if err := l.create(ctx, t); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			l.log.Error("loader: failed to create table", "table", t.Name, "path", t.Path, "error", err)
			report.Failed = append(report.Failed, Failure{Table: t, Err: err})
			metrics.LoaderTablesTotal.WithLabelValues("failed").Inc()
			continue
		}
		l.log.Info("loader: created table", "table", t.Name, "type", t.DatasetType, "year", t.Year, "level", t.Level)
		report.Created = append(report.Created, t.Name)
		metrics.LoaderTablesTotal.WithLabelValues("created").Inc()
	}

	l.log.Info("loader: tables ensured",
		"created", len(report.Created),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"duration", l.cfg.Clock.Since(start))
	return report, nil
}

func (l *Loader) create(ctx context.Context, t Table) error {
	source, err := l.cfg.Storage.Resolve(ctx, t.Path)
	if err != nil {
		return err
	}
	return l.cfg.Executor.Exec(ctx, l.cfg.Executor.Dialect().MaterializeTable(t.Name, source))
}

// Reset drops every catalog table that exists in the engine and returns
// their names. With dryRun nothing is dropped.
func (l *Loader) Reset(ctx context.Context, dryRun bool) ([]string, error) {
	existing, err := l.cfg.Executor.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables, err := l.Tables()
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, t := range tables {
		if !slices.Contains(existing, t.Name) {
			continue
		}
		if !dryRun {
			if err := l.cfg.Executor.Exec(ctx, l.cfg.Executor.Dialect().DropTable(t.Name)); err != nil {
				return dropped, fmt.Errorf("failed to drop %s: %w", t.Name, err)
			}
			l.log.Info("loader: dropped table", "table", t.Name)
		}
		dropped = append(dropped, t.Name)
	}
	return dropped, nil
}
