package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when work is submitted to a closed pool.
var ErrClosed = errors.New("workpool: pool is closed")

// Options configures a Pool.
type Options struct {
	// Concurrency is the number of worker goroutines. Default 4.
	Concurrency int

	// QueueSize is the number of submitted tasks that may wait for a worker.
	// Default is twice the concurrency.
	QueueSize int

	// ShutdownTimeout bounds how long Close waits for running tasks when the
	// caller's context has no deadline. Default 30s.
	ShutdownTimeout time.Duration

	// Logger is the structured logger for pool operations.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool runs blocking calls on a fixed set of goroutines. Callers block only
// on their own task, so a slow backend call never holds up unrelated work
// beyond the pool's capacity.
type Pool struct {
	id      string
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
	timeout time.Duration
}

// New starts a pool with opts.Concurrency workers.
func New(opts Options) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Concurrency * 2
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pool{
		id:      generatePoolID(),
		tasks:   make(chan task, opts.QueueSize),
		timeout: opts.ShutdownTimeout,
	}
	p.logger = opts.Logger.With("pool_id", p.id)

	for i := 0; i < opts.Concurrency; i++ {
		p.wg.Add(1)
		go func(workerNum int) {
			defer p.wg.Done()
			p.workerLoop(workerNum)
		}(i)
	}

	p.logger.Debug("worker pool started", "workers", opts.Concurrency, "queue_size", opts.QueueSize)
	return p
}

// ID returns the pool's unique identifier.
func (p *Pool) ID() string { return p.id }

// Do runs fn on a pool worker and waits for it. If ctx ends first, Do
// returns ctx.Err(); fn still sees the cancelled context.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit runs fn on the pool and returns its value. When ctx ends before fn
// finishes, the zero value is returned and fn's result is discarded.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	res := make(chan result, 1)
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		res <- result{v: v, err: err}
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	// a nil error from Do means fn ran to completion
	r := <-res
	return r.v, nil
}

// All runs every fn on the pool and waits for them. The first error cancels
// the context passed to the rest and is returned.
func (p *Pool) All(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error {
			return p.Do(gctx, fn)
		})
	}
	return g.Wait()
}

// Close stops accepting work and waits for queued and running tasks to
// finish, until ctx ends or the shutdown timeout passes.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	doneChan := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		p.logger.Debug("worker pool shutdown complete")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timeout exceeded", "error", ctx.Err())
		return ctx.Err()
	}
}

func (p *Pool) workerLoop(workerNum int) {
	logger := p.logger.With("worker_num", workerNum)
	for t := range p.tasks {
		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		t.done <- run(t, logger)
	}
	logger.Debug("worker loop stopped", "reason", "pool_closed")
}

func run(t task, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r)
			err = fmt.Errorf("workpool: task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}

// generatePoolID creates a unique identifier from hostname, PID and a UUID suffix.
func generatePoolID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}
