package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure).
// The context carries the execution context of the running task, so a task
// that calls Submit with it forks a child of itself.
type Task func(ctx context.Context)

// =============================================================================
// TaskID
// =============================================================================

// TaskID uniquely identifies a submitted task.
type TaskID uuid.UUID

// GenerateTaskID returns a fresh random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero TaskID.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// =============================================================================
// TaskTraits: Define task attributes
// =============================================================================

type TaskTraits struct {
	// Name labels the task in history records. Resolved from the function
	// name when empty.
	Name string

	// Orphan queues the task in the pool-wide orphan queue even when it is
	// submitted from inside a running task. The submitting task does not
	// count it as a child, so WaitChildren will not wait for it. The drain
	// barrier still does.
	Orphan bool
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{}
}

func TraitsOrphan() TaskTraits {
	return TaskTraits{Orphan: true}
}

// =============================================================================
// TaskState
// =============================================================================

type TaskState int32

const (
	TaskStateCreated TaskState = iota
	TaskStateQueued
	TaskStateRunning
	// TaskStateDraining: the body returned, children are being joined
	TaskStateDraining
	TaskStateCompleted
)

func (s TaskState) String() string {
	switch s {
	case TaskStateCreated:
		return "created"
	case TaskStateQueued:
		return "queued"
	case TaskStateRunning:
		return "running"
	case TaskStateDraining:
		return "draining"
	case TaskStateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// =============================================================================
// taskNode: one schedulable task plus its join bookkeeping
// =============================================================================

type taskNode struct {
	id     TaskID
	name   string
	task   Task
	parent *taskNode // non-owning, nil for orphans
	stolen bool      // written by the claiming worker before the body runs
	exited bool      // the body called runtime.Goexit

	// outer is the node the executing worker was running when it started
	// this one, nil at the bottom of the worker's stack. Set before the node
	// is published through worker.current.
	outer *taskNode

	children *BoundedQueue[*taskNode]
	state    atomic.Int32

	// released is closed once Submit has finished publishing the node.
	released chan struct{}
	// bodyDone is closed exactly once, when the closure returns or panics.
	bodyDone chan struct{}
	// done is closed once the node is Completed and released from the barrier.
	done chan struct{}

	mu      sync.Mutex
	zero    *sync.Cond // signalled when pending drops to zero
	pending int        // children not yet completed
	err     error      // first failure in the subtree
}

func newTaskNode(task Task, name string, parent *taskNode, childCapacity int) *taskNode {
	n := &taskNode{
		id:       GenerateTaskID(),
		task:     task,
		parent:   parent,
		children: NewBoundedQueue[*taskNode](childCapacity),
		released: make(chan struct{}),
		bodyDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	n.name = resolveTaskName(task, name)
	n.zero = sync.NewCond(&n.mu)
	return n
}

func (n *taskNode) State() TaskState {
	return TaskState(n.state.Load())
}

func (n *taskNode) setState(s TaskState) {
	n.state.Store(int32(s))
}

// claim moves a queued node to Running. Exactly one caller wins, which makes
// stale queue entries (a node already run inline by a joiner) harmless.
func (n *taskNode) claim() bool {
	return n.state.CompareAndSwap(int32(TaskStateQueued), int32(TaskStateRunning))
}

func (n *taskNode) addChild() {
	n.mu.Lock()
	n.pending++
	n.mu.Unlock()
}

// childFinished is called once per child after the child's whole subtree has
// completed.
func (n *taskNode) childFinished(childErr error) {
	n.mu.Lock()
	if childErr != nil && n.err == nil {
		n.err = childErr
	}
	n.pending--
	if n.pending < 0 {
		n.mu.Unlock()
		panic("forkjoin: child counter went negative")
	}
	if n.pending == 0 {
		n.zero.Broadcast()
	}
	n.mu.Unlock()
}

// waitPending blocks until every child counted so far has completed.
func (n *taskNode) waitPending() {
	n.mu.Lock()
	for n.pending > 0 {
		n.zero.Wait()
	}
	n.mu.Unlock()
}

func (n *taskNode) pendingChildren() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}

func (n *taskNode) fail(err error) {
	n.mu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.mu.Unlock()
}

func (n *taskNode) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *taskNode) isBodyDone() bool {
	select {
	case <-n.bodyDone:
		return true
	default:
		return false
	}
}

// =============================================================================
// Context Helper
// =============================================================================

// execution describes the task currently running on a goroutine.
type execution struct {
	pool   *WorkerPool
	worker *worker // nil when a joiner runs the task outside the pool
	node   *taskNode
}

type executionKeyType struct{}

var executionKey executionKeyType

func withExecution(ctx context.Context, e *execution) context.Context {
	return context.WithValue(ctx, executionKey, e)
}

func executionFrom(ctx context.Context) *execution {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(executionKey); v != nil {
		return v.(*execution)
	}
	return nil
}

// CurrentTaskID returns the ID of the task whose body is running with ctx.
func CurrentTaskID(ctx context.Context) (TaskID, bool) {
	if e := executionFrom(ctx); e != nil && e.node != nil {
		return e.node.id, true
	}
	return TaskID{}, false
}

// CurrentWorkerID returns the worker executing the task that owns ctx, or -1
// when the task is being run by a joiner outside the pool.
func CurrentWorkerID(ctx context.Context) int {
	if e := executionFrom(ctx); e != nil && e.worker != nil {
		return e.worker.id
	}
	return -1
}
