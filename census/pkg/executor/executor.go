// Package executor runs blocking engine calls on a fixed pool of worker
// goroutines so request handlers never block on the engine directly.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/census/census/pkg/engine"
	"github.com/malbeclabs/census/census/pkg/metrics"
)

var (
	// ErrExecution matches every failure reported by the engine.
	ErrExecution = errors.New("query execution failed")
	// ErrClosed is returned for calls submitted after Close.
	ErrClosed = errors.New("executor is closed")
)

// ExecutionError wraps an engine failure. It matches both ErrExecution and
// the engine's own error.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

type Config struct {
	Logger    *slog.Logger
	Engine    engine.Engine
	Workers   int
	QueueSize int
	Clock     clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Workers < 0 || cfg.QueueSize < 0 {
		return errors.New("workers and queue size must be non-negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = min(32, runtime.NumCPU()+4)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type outcome struct {
	value any
	err   error
}

type job struct {
	ctx      context.Context
	op       string
	run      func(ctx context.Context, conn engine.Connection) (any, error)
	enqueued time.Time
	// done has capacity 1 so a worker never blocks on a caller that left.
	done chan outcome
}

// Executor is a bounded worker pool. Each job opens its own connection in
// the worker and closes it before the result is delivered, so the number of
// open engine connections never exceeds the number of workers.
type Executor struct {
	log    *slog.Logger
	cfg    Config
	engine engine.Engine
	jobs   chan *job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	e := &Executor{
		log:    cfg.Logger,
		cfg:    cfg,
		engine: cfg.Engine,
		jobs:   make(chan *job, cfg.QueueSize),
	}
	for range cfg.Workers {
		e.wg.Add(1)
		go e.worker()
	}
	e.log.Info("executor: started", "engine", cfg.Engine.Name(), "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return e, nil
}

// Workers returns the size of the pool.
func (e *Executor) Workers() int {
	return e.cfg.Workers
}

// Dialect returns the dialect of the underlying engine.
func (e *Executor) Dialect() engine.Dialect {
	return e.engine.Dialect()
}

// Query runs a read statement and returns the materialized result.
func (e *Executor) Query(ctx context.Context, query string, args ...any) (*engine.Result, error) {
	return submit(ctx, e, "query", func(ctx context.Context, conn engine.Connection) (*engine.Result, error) {
		return conn.Query(ctx, query, args...)
	})
}

// Exec runs a statement without a result.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) error {
	_, err := submit(ctx, e, "exec", func(ctx context.Context, conn engine.Connection) (struct{}, error) {
		return struct{}{}, conn.Exec(ctx, query, args...)
	})
	return err
}

// Columns returns a table's column names in declared order.
func (e *Executor) Columns(ctx context.Context, table string) ([]string, error) {
	return submit(ctx, e, "describe", func(ctx context.Context, conn engine.Connection) ([]string, error) {
		res, err := conn.Query(ctx, e.engine.Dialect().DescribeTable(table))
		if err != nil {
			return nil, err
		}
		return engine.FirstColumn(res)
	})
}

// Tables returns the names of the tables in the engine's database.
func (e *Executor) Tables(ctx context.Context) ([]string, error) {
	return submit(ctx, e, "list_tables", func(ctx context.Context, conn engine.Connection) ([]string, error) {
		res, err := conn.Query(ctx, e.engine.Dialect().ListTables())
		if err != nil {
			return nil, err
		}
		return engine.FirstColumn(res)
	})
}

// Close stops accepting jobs and waits for the workers to drain the queue.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info("executor: stopped")
}

// submit enqueues fn and waits for its outcome or for ctx to end. When ctx
// ends first the context error is returned at once; the worker still runs
// or skips the job and its result is discarded.
func submit[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context, conn engine.Connection) (T, error)) (T, error) {
	var zero T
	j := &job{
		ctx: ctx,
		op:  op,
		run: func(ctx context.Context, conn engine.Connection) (any, error) {
			return fn(ctx, conn)
		},
		enqueued: e.cfg.Clock.Now(),
		done:     make(chan outcome, 1),
	}

	if err := e.enqueue(ctx, j); err != nil {
		return zero, err
	}

	select {
	case out := <-j.done:
		if out.err != nil {
			return zero, out.err
		}
		return out.value.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (e *Executor) enqueue(ctx context.Context, j *job) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		j.done <- e.handle(j)
	}
}

func (e *Executor) handle(j *job) outcome {
	metrics.ExecutorQueueWait.Observe(e.cfg.Clock.Since(j.enqueued).Seconds())

	if err := j.ctx.Err(); err != nil {
		return outcome{err: err}
	}

	metrics.ExecutorInFlight.Inc()
	defer metrics.ExecutorInFlight.Dec()

	start := e.cfg.Clock.Now()
	value, err := e.call(j)
	duration := e.cfg.Clock.Since(start)
	metrics.RecordExecutorCall(e.engine.Name(), j.op, duration, err)

	if err != nil {
		if ctxErr := j.ctx.Err(); ctxErr != nil {
			return outcome{err: ctxErr}
		}
		e.log.Warn("executor: engine call failed", "op", j.op, "duration", duration, "error", err)
		return outcome{err: &ExecutionError{Op: j.op, Err: err}}
	}
	e.log.Debug("executor: engine call completed", "op", j.op, "duration", duration)
	return outcome{value: value}
}

func (e *Executor) call(j *job) (any, error) {
	conn, err := e.engine.Conn(j.ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			e.log.Warn("executor: failed to close connection", "op", j.op, "error", err)
		}
	}()
	return j.run(j.ctx, conn)
}
