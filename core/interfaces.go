package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics during execution.
// The panic never escapes the worker; it is recorded on the task and
// propagated to its ancestors' joins.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The execution context of the panicked task
	// - poolID: The ID of the pool that ran the task
	// - workerID: The ID of the worker (-1 when a joiner ran the task inline outside the pool)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	fields := []Field{F("pool", poolID), F("worker", workerID), F("panic", panicInfo)}
	if id, ok := CurrentTaskID(ctx); ok {
		fields = append(fields, F("task", id.String()))
	}
	fields = append(fields, F("stack", string(stackTrace)))
	logger.Error("task panicked", fields...)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast: they run on the worker hot path.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	// Time spent joining children is not included.
	RecordTaskDuration(poolID string, duration time.Duration)

	// RecordTaskPanic records that a task body panicked.
	RecordTaskPanic(poolID string, panicInfo any)

	// RecordQueueDepth records the depth of a pool queue after a push.
	RecordQueueDepth(poolID string, queue string, depth int)

	// RecordTaskStolen records that a worker claimed a task from another
	// worker's current task.
	RecordTaskStolen(poolID string, workerID int)

	// RecordQueueOverflow records a push into a full queue.
	RecordQueueOverflow(poolID string, queue string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolID string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolID string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(poolID string, queue string, depth int)  {}
func (m *NilMetrics) RecordTaskStolen(poolID string, workerID int)             {}
func (m *NilMetrics) RecordQueueOverflow(poolID string, queue string)          {}

// =============================================================================
// PoolConfig: Configuration for WorkerPool
// =============================================================================

// PoolConfig holds configuration options for a WorkerPool.
// Zero values and nil handlers are replaced with defaults.
type PoolConfig struct {
	// ID names the pool in logs and metrics. Defaults to "forkjoin".
	ID string

	// Workers is the fixed number of workers. Values <= 0 mean runtime.NumCPU().
	Workers int

	// OrphanQueueCapacity bounds the pool-wide orphan queue.
	OrphanQueueCapacity int

	// ChildQueueCapacity bounds every task's queue of unclaimed children.
	ChildQueueCapacity int

	// LockOSThread pins every worker goroutine to its own OS thread.
	LockOSThread bool

	// HistoryCapacity is the number of execution records kept for RecentTasks.
	HistoryCapacity int

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger receives lifecycle and error logs. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultPoolConfig returns a config with default handlers.
func DefaultPoolConfig() *PoolConfig {
	logger := NewDefaultLogger()
	return &PoolConfig{
		ID:                  "forkjoin",
		Workers:             -1,
		OrphanQueueCapacity: DefaultOrphanQueueCapacity,
		ChildQueueCapacity:  DefaultChildQueueCapacity,
		HistoryCapacity:     DefaultHistoryCapacity,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		Logger:              logger,
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *PoolConfig) withDefaults() PoolConfig {
	out := PoolConfig{}
	if c != nil {
		out = *c
	}
	if out.ID == "" {
		out.ID = "forkjoin"
	}
	if out.OrphanQueueCapacity <= 0 {
		out.OrphanQueueCapacity = DefaultOrphanQueueCapacity
	}
	if out.ChildQueueCapacity <= 0 {
		out.ChildQueueCapacity = DefaultChildQueueCapacity
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = DefaultHistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	return out
}
