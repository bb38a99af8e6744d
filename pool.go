package forkjoin

import (
	"context"

	"github.com/Swind/go-forkjoin/core"
)

// Pool is a fork-join worker pool with a fixed number of workers.
//
// It embeds *core.WorkerPool, so Submit, SubmitOrphan, SubmitWithTraits,
// WaitChildren, DrainBarrier, Destroy, Stats and RecentTasks are all
// available directly.
type Pool struct {
	*core.WorkerPool
}

// Option customizes a Pool at construction.
type Option func(*core.PoolConfig)

// WithID names the pool in logs and metrics.
func WithID(id string) Option {
	return func(c *core.PoolConfig) { c.ID = id }
}

func WithLogger(logger Logger) Option {
	return func(c *core.PoolConfig) { c.Logger = logger }
}

func WithMetrics(metrics Metrics) Option {
	return func(c *core.PoolConfig) { c.Metrics = metrics }
}

func WithPanicHandler(handler PanicHandler) Option {
	return func(c *core.PoolConfig) { c.PanicHandler = handler }
}

// WithOrphanQueueCapacity bounds the pool-wide orphan queue.
func WithOrphanQueueCapacity(capacity int) Option {
	return func(c *core.PoolConfig) { c.OrphanQueueCapacity = capacity }
}

// WithChildQueueCapacity bounds the child queue of every task.
func WithChildQueueCapacity(capacity int) Option {
	return func(c *core.PoolConfig) { c.ChildQueueCapacity = capacity }
}

// WithLockOSThread pins each worker to its own OS thread.
func WithLockOSThread() Option {
	return func(c *core.PoolConfig) { c.LockOSThread = true }
}

// WithHistoryCapacity sets how many execution records RecentTasks keeps.
func WithHistoryCapacity(capacity int) Option {
	return func(c *core.PoolConfig) { c.HistoryCapacity = capacity }
}

// NewPool starts a pool with the given number of workers. A count <= 0
// (conventionally -1) uses one worker per CPU. NewPool returns once every
// worker is ready to pull work.
func NewPool(workers int, opts ...Option) *Pool {
	cfg := core.DefaultPoolConfig()
	cfg.Workers = workers
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger != nil {
		if h, ok := cfg.PanicHandler.(*core.DefaultPanicHandler); ok {
			h.Logger = cfg.Logger
		}
	}
	return NewPoolWithConfig(cfg)
}

// NewPoolWithConfig starts a pool from an explicit config. Unset fields use
// their defaults.
func NewPoolWithConfig(cfg *core.PoolConfig) *Pool {
	return &Pool{WorkerPool: core.NewWorkerPool(cfg)}
}

// Go submits task and joins it, returning the first failure in its subtree.
// From inside a task of this pool, pass the task's ctx so the join can run
// the task inline.
func (p *Pool) Go(ctx context.Context, task Task) error {
	return p.Submit(ctx, task).WaitContext(ctx)
}

// ForEach forks one child per index in [0, n) and joins them all. It must be
// called with the ctx of a task running in this pool; outside a task every
// index becomes an orphan and ForEach waits for each handle instead.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	if core.PoolFromContext(ctx) != p.WorkerPool {
		handles := make([]*TaskHandle, n)
		for i := range n {
			handles[i] = p.SubmitOrphan(func(ctx context.Context) { fn(ctx, i) })
		}
		var first error
		for _, h := range handles {
			if err := h.Wait(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for i := range n {
		p.Submit(ctx, func(ctx context.Context) { fn(ctx, i) })
	}
	return p.WaitChildren(ctx)
}
