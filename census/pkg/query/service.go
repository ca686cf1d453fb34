// Package query serves census queries: it validates requests, resolves the
// physical table, compiles the statement and runs it on the executor.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/census/census/pkg/colname"
	"github.com/malbeclabs/census/census/pkg/compiler"
	"github.com/malbeclabs/census/census/pkg/engine"
	"github.com/malbeclabs/census/census/pkg/schema"
	"golang.org/x/sync/errgroup"
)

// Executor runs engine calls off the caller's goroutine.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (*engine.Result, error)
	Columns(ctx context.Context, table string) ([]string, error)
}

type Config struct {
	Logger   *slog.Logger
	Resolver *schema.Resolver
	Executor Executor
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Resolver == nil {
		return errors.New("resolver is required")
	}
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	return nil
}

type Service struct {
	log      *slog.Logger
	resolver *schema.Resolver
	exec     Executor
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Service{log: cfg.Logger, resolver: cfg.Resolver, exec: cfg.Executor}, nil
}

// DatasetSummary describes one configured dataset for discovery.
type DatasetSummary struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Years       []int                  `json:"years"`
	Levels      map[int][]schema.Level `json:"levels"`
}

// Datasets lists the configured datasets with their levels per year.
func (s *Service) Datasets() []DatasetSummary {
	all := s.resolver.Catalog().All()
	out := make([]DatasetSummary, 0, len(all))
	for _, d := range all {
		summary := DatasetSummary{
			Type:        d.Type,
			Description: d.Description,
			Years:       d.Years,
			Levels:      make(map[int][]schema.Level, len(d.Years)),
		}
		for _, year := range d.Years {
			levels, err := s.resolver.AvailableLevels(d.Type, year)
			if err != nil {
				continue
			}
			summary.Levels[year] = levels
		}
		out = append(out, summary)
	}
	return out
}

// Levels returns the aggregation levels available for a dataset in a year.
func (s *Service) Levels(datasetType string, year int) ([]schema.Level, error) {
	return s.resolver.AvailableLevels(datasetType, year)
}

// ListVariables returns the canonical data variables of a table, excluding
// identifier columns.
func (s *Service) ListVariables(ctx context.Context, datasetType string, year int, level schema.Level) ([]string, error) {
	target, err := s.resolver.Resolve(datasetType, year, level)
	if err != nil {
		return nil, err
	}
	mapping, err := s.mapping(ctx, target)
	if err != nil {
		return nil, err
	}
	return mapping.Variables(), nil
}

// Query returns up to req.Limit records starting at req.Offset. Variables
// the table does not have are left out of the result.
func (s *Service) Query(ctx context.Context, req Request) (*Records, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	target, err := s.resolver.Resolve(req.DatasetType, req.Year, req.Level)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, target, req)
}

// QueryYears runs the same request for several years concurrently. Every
// year is validated before any query runs and the request fails as a whole
// if any year fails.
func (s *Service) QueryYears(ctx context.Context, req MultiYearRequest) (*MultiYearResult, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	targets := make([]schema.Target, len(req.Years))
	for i, year := range req.Years {
		target, err := s.resolver.Resolve(req.DatasetType, year, req.Level)
		if err != nil {
			return nil, err
		}
		targets[i] = target
	}

	result := &MultiYearResult{Years: make([]YearRecords, len(targets))}
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			records, err := s.run(gctx, target, req.forYear(target.Year))
			if err != nil {
				return fmt.Errorf("year %d: %w", target.Year, err)
			}
			result.Years[i] = YearRecords{Year: target.Year, Data: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, target schema.Target, req Request) (*Records, error) {
	mapping, err := s.mapping(ctx, target)
	if err != nil {
		return nil, err
	}
	stmt, err := compiler.Compile(target.Table, target.Identifiers, mapping, req.Variables, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	s.log.Debug("query: executing", "table", target.Table, "sql", stmt.SQL, "limit", req.Limit, "offset", req.Offset)

	res, err := s.exec.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	rows := res.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Records{Columns: stmt.Columns, Rows: rows}, nil
}

func (s *Service) mapping(ctx context.Context, target schema.Target) (colname.Mapping, error) {
	columns, err := s.exec.Columns(ctx, target.Table)
	if err != nil {
		return colname.Mapping{}, err
	}
	return colname.BuildMapping(columns, target.Identifiers...), nil
}
