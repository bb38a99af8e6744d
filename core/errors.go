package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrQueueFull is wrapped by every QueueOverflowError.
	ErrQueueFull = errors.New("task queue is at capacity")

	// ErrNotInTask is returned by WaitChildren when ctx does not belong to a
	// running task of the pool.
	ErrNotInTask = errors.New("not called from inside a running task")

	// ErrSelfWait is returned when a task joins itself or one of its
	// ancestors, which could never complete.
	ErrSelfWait = errors.New("task waits on itself or an ancestor")

	// ErrTaskExited is recorded on a task whose body called runtime.Goexit.
	ErrTaskExited = errors.New("task body exited without returning")

	// ErrPoolDestroyed is wrapped by the panic raised when submitting to a destroyed pool.
	ErrPoolDestroyed = errors.New("worker pool destroyed")
)

// Queue names used in overflow errors, logs and metrics.
const (
	QueueOrphan = "orphan"
	QueueChild  = "child"
)

// QueueOverflowError reports a push into a bounded queue that was full.
// Overflows are fatal: the pool panics with this value and workers never
// swallow it.
type QueueOverflowError struct {
	PoolID   string
	Queue    string
	Capacity int
	ParentID TaskID // zero for the orphan queue
}

func (e *QueueOverflowError) Error() string {
	if e.Queue == QueueChild {
		return fmt.Sprintf("pool %s: child queue of task %s overflowed (capacity %d): %v",
			e.PoolID, e.ParentID, e.Capacity, ErrQueueFull)
	}
	return fmt.Sprintf("pool %s: %s queue overflowed (capacity %d): %v",
		e.PoolID, e.Queue, e.Capacity, ErrQueueFull)
}

func (e *QueueOverflowError) Unwrap() error {
	return ErrQueueFull
}

// TaskPanicError records a task body that panicked. It propagates to every
// ancestor and is returned from their joins.
type TaskPanicError struct {
	TaskID     TaskID
	Name       string
	PanicValue any
	Stack      []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task %s (%s) panicked: %v", e.Name, e.TaskID, e.PanicValue)
}
