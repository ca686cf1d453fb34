package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/census/census/pkg/catalog"
	"github.com/malbeclabs/census/census/pkg/engine"
	"github.com/malbeclabs/census/census/pkg/engine/clickhouse"
	"github.com/malbeclabs/census/census/pkg/engine/duckdb"
	"github.com/malbeclabs/census/census/pkg/executor"
	"github.com/malbeclabs/census/census/pkg/loader"
	"github.com/malbeclabs/census/census/pkg/query"
	"github.com/malbeclabs/census/census/pkg/schema"
	"github.com/malbeclabs/census/census/pkg/storage"
)

// Options selects the catalog, engine and storage an admin command runs
// against.
type Options struct {
	Logger     *slog.Logger
	ConfigPath string
	Engine     string
	DuckDB     duckdb.Config
	ClickHouse clickhouse.Config
	Storage    storage.Options
}

// Env is the set of census components an admin command uses.
type Env struct {
	Registry *catalog.Registry
	Executor *executor.Executor
	Loader   *loader.Loader
	Service  *query.Service

	engine engine.Engine
}

func Open(ctx context.Context, opts Options) (*Env, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	reg, err := catalog.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	resolver, err := schema.NewResolver(reg)
	if err != nil {
		return nil, err
	}

	var eng engine.Engine
	switch opts.Engine {
	case clickhouse.Name:
		opts.ClickHouse.Logger = opts.Logger
		eng, err = clickhouse.New(ctx, opts.ClickHouse)
	case duckdb.Name, "":
		opts.DuckDB.Logger = opts.Logger
		eng, err = duckdb.New(ctx, opts.DuckDB)
	default:
		return nil, fmt.Errorf("unknown engine %q", opts.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	exec, err := executor.New(executor.Config{Logger: opts.Logger, Engine: eng})
	if err != nil {
		eng.Close()
		return nil, err
	}
	env := &Env{Registry: reg, Executor: exec, engine: eng}

	if opts.Storage.BaseDir == "" {
		opts.Storage.BaseDir = reg.Dir()
	}
	opts.Storage.Logger = opts.Logger
	store, err := storage.New(ctx, opts.Storage)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to create storage resolver: %w", err)
	}

	env.Loader, err = loader.New(loader.Config{Logger: opts.Logger, Resolver: resolver, Storage: store, Executor: exec})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Service, err = query.NewService(query.Config{Logger: opts.Logger, Resolver: resolver, Executor: exec})
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *Env) Close() error {
	e.Executor.Close()
	return e.engine.Close()
}
