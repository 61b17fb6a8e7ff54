// Package workers runs background tasks on a bounded goroutine pool.
package workers

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ErrOverloaded is returned by Submit when a nonblocking pool is full.
var ErrOverloaded = errors.New("worker pool overloaded")

// ErrClosed is returned by Submit after Release.
var ErrClosed = errors.New("worker pool closed")

// Config sizes a pool.
type Config struct {
	// Capacity is the maximum number of concurrent tasks.
	Capacity int
	// ExpiryDuration is how long an idle worker lives.
	ExpiryDuration time.Duration
	// Nonblocking makes Submit fail with ErrOverloaded instead of waiting.
	Nonblocking bool
	// MaxBlockingTasks bounds waiting submitters when Nonblocking is false.
	MaxBlockingTasks int
}

// DefaultConfig returns the configuration for a pool of the given size.
func DefaultConfig(capacity int) Config {
	if capacity <= 0 {
		capacity = 4
	}
	return Config{
		Capacity:         capacity,
		ExpiryDuration:   10 * time.Second,
		MaxBlockingTasks: 1000,
	}
}

// Stats reports pool activity.
type Stats struct {
	Submitted int64
	Completed int64
	Rejected  int64
	Panics    int64
	Running   int
}

// Pool wraps an ants pool with a name, zap logging and counters.
type Pool struct {
	name   string
	pool   *ants.Pool
	logger *zap.SugaredLogger

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// New creates a named pool.
func New(name string, cfg Config, logger *zap.SugaredLogger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &Pool{name: name, logger: logger}

	opts := []ants.Option{
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithNonblocking(cfg.Nonblocking),
		ants.WithMaxBlockingTasks(cfg.MaxBlockingTasks),
		ants.WithPanicHandler(func(v any) {
			p.panics.Add(1)
			p.logger.Errorw("Worker panic recovered", "pool", name, "panic", v)
		}),
	}
	pool, err := ants.NewPool(cfg.Capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s pool: %w", name, err)
	}
	p.pool = pool

	logger.Debugw("Worker pool created", "name", name, "capacity", cfg.Capacity)
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Submit queues task.
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrOverloaded
	case errors.Is(err, ants.ErrPoolClosed):
		p.rejected.Add(1)
		return ErrClosed
	default:
		p.rejected.Add(1)
		return fmt.Errorf("submitting to %s pool: %w", p.name, err)
	}
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
		Running:   p.pool.Running(),
	}
}

// Release stops accepting tasks and waits up to timeout for running ones.
func (p *Pool) Release(timeout time.Duration) error {
	if p.pool.IsClosed() {
		return nil
	}
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("releasing %s pool: %w", p.name, err)
	}
	return nil
}
