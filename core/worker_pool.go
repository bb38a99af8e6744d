package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// worker is one persistent goroutine of a WorkerPool.
type worker struct {
	id   int
	pool *WorkerPool

	// current is written only by this worker's goroutine and read by thieves.
	// A stale read is harmless: stealing from a drained queue finds nothing.
	current atomic.Pointer[taskNode]

	executed atomic.Uint64
	stolen   atomic.Uint64
}

// WorkerPool is a fixed set of workers executing fork-join tasks.
//
// Tasks submitted from outside the pool go to a bounded orphan queue. Tasks
// submitted from inside a running task become its children and are queued on
// that task, where idle workers steal them. A task completes only after its
// body returned and every descendant completed.
type WorkerPool struct {
	id      string
	config  PoolConfig
	workers []*worker

	orphans *BoundedQueue[*taskNode]
	signal  chan struct{}
	barrier *CompletionBarrier
	history *executionHistory

	ctx    context.Context
	cancel context.CancelFunc
	ready  sync.WaitGroup // startup handshake
	exited sync.WaitGroup // shutdown handshake

	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger

	awaiting  atomic.Int64
	active    atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	stolen    atomic.Uint64
	panicked  atomic.Uint64

	destroyed   atomic.Bool
	destroyOnce sync.Once
}

// NewWorkerPool starts the workers and returns once every one of them has
// registered and is ready to pull work.
func NewWorkerPool(config *PoolConfig) *WorkerPool {
	cfg := config.withDefaults()

	n := cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	cfg.Workers = n

	p := &WorkerPool{
		id:           cfg.ID,
		config:       cfg,
		workers:      make([]*worker, n),
		orphans:      NewBoundedQueue[*taskNode](cfg.OrphanQueueCapacity),
		signal:       make(chan struct{}, n*2),
		barrier:      NewCompletionBarrier(),
		history:      newExecutionHistory(cfg.HistoryCapacity),
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for i := range p.workers {
		p.workers[i] = &worker{id: i, pool: p}
	}

	p.ready.Add(n)
	p.exited.Add(n)
	for _, w := range p.workers {
		go w.run(false)
	}
	p.ready.Wait()

	p.logger.Info("worker pool started",
		F("pool", p.id),
		F("workers", n),
		F("orphan_capacity", cfg.OrphanQueueCapacity),
		F("child_capacity", cfg.ChildQueueCapacity))
	return p
}

// =============================================================================
// Worker loop
// =============================================================================

func (w *worker) run(restarted bool) {
	p := w.pool
	stopped := false
	defer func() {
		if !stopped {
			// A task body called runtime.Goexit and unwound this goroutine;
			// replace it so the pool keeps its size.
			p.exited.Add(1)
			go w.run(true)
		}
		p.exited.Done()
	}()

	if p.config.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	if restarted {
		p.logger.Warn("worker restarted", F("pool", p.id), F("worker", w.id))
	} else {
		p.logger.Debug("worker started", F("pool", p.id), F("worker", w.id))
		p.ready.Done()
	}

	w.loop()
	stopped = true
}

func (w *worker) loop() {
	p := w.pool
	stopCh := p.ctx.Done()
	for {
		select {
		case <-stopCh:
			p.logger.Debug("worker stopped", F("pool", p.id), F("worker", w.id))
			return
		default:
		}

		if node, stolen := p.findWork(w); node != nil {
			if stolen {
				w.stolen.Add(1)
				p.stolen.Add(1)
				p.metrics.RecordTaskStolen(p.id, w.id)
			}
			p.runNode(w, node, stolen)
			continue
		}

		select {
		case <-p.signal:
		case <-stopCh:
			p.logger.Debug("worker stopped", F("pool", p.id), F("worker", w.id))
			return
		}
	}
}

// findWork steals from the other workers' current tasks, starting with the
// next worker id, then falls back to the orphan queue.
func (p *WorkerPool) findWork(w *worker) (*taskNode, bool) {
	n := len(p.workers)
	for i := 1; i < n; i++ {
		victim := p.workers[(w.id+i)%n]
		if node := p.stealFrom(victim); node != nil {
			return node, true
		}
	}

	for {
		node, ok := p.orphans.Pop()
		if !ok {
			return nil, false
		}
		if p.claim(node) {
			return node, false
		}
	}
}

// stealFrom tries every node on the victim's execution stack, innermost
// first. A worker that joins another task inline keeps the queues of the
// tasks below it reachable this way.
func (p *WorkerPool) stealFrom(victim *worker) *taskNode {
	for task := victim.current.Load(); task != nil; task = task.outer {
		if node := p.steal(task); node != nil {
			return node
		}
	}
	return nil
}

// steal pops one claimable child from task's queue. It never touches the
// orphan queue.
func (p *WorkerPool) steal(task *taskNode) *taskNode {
	if task == nil {
		return nil
	}
	for {
		node, ok := task.children.Pop()
		if !ok {
			return nil
		}
		if p.claim(node) {
			return node
		}
	}
}

func (p *WorkerPool) claim(node *taskNode) bool {
	if !node.claim() {
		return false
	}
	p.awaiting.Add(-1)
	return true
}

func (p *WorkerPool) wakeOne() {
	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full, enough workers are already awake
	}
}

// =============================================================================
// Execution
// =============================================================================

// runNode executes a claimed node to completion on the calling goroutine:
// body, inline drain of its children, join, then completion. w is nil when a
// joiner outside the pool runs the node.
func (p *WorkerPool) runNode(w *worker, n *taskNode, stolen bool) {
	<-n.released
	n.stolen = stolen

	var prev *taskNode
	if w != nil {
		prev = w.current.Load()
		n.outer = prev
		w.current.Store(n)
		w.executed.Add(1)
	}

	// A body that calls runtime.Goexit unwinds through here; finish the node
	// on the way out so its parent and the barrier are still released.
	defer func() {
		if n.exited {
			p.finish(w, n, prev)
		}
	}()

	ctx := withExecution(p.ctx, &execution{pool: p, worker: w, node: n})
	p.runBody(ctx, w, n)
	p.finish(w, n, prev)
}

func (p *WorkerPool) finish(w *worker, n *taskNode, prev *taskNode) {
	n.setState(TaskStateDraining)
	p.drain(w, n)
	n.waitPending()

	if w != nil {
		w.current.Store(prev)
	}
	p.complete(n)
}

func (p *WorkerPool) runBody(ctx context.Context, w *worker, n *taskNode) {
	workerID := -1
	if w != nil {
		workerID = w.id
	}

	startedAt := time.Now()
	p.active.Add(1)
	returned := false

	defer func() {
		p.active.Add(-1)
		panicked := false

		r := recover()
		if r == nil && !returned {
			n.exited = true
			n.fail(errors.Wrapf(ErrTaskExited, "task %s (%s)", n.id, n.name))
			p.logger.Warn("task called runtime.Goexit",
				F("pool", p.id), F("worker", workerID), F("task", n.name))
		}
		if r != nil {
			if overflow, ok := r.(*QueueOverflowError); ok {
				// Overflow is fatal, never swallow it
				panic(overflow)
			}
			panicked = true
			stack := debug.Stack()
			p.panicked.Add(1)
			n.fail(&TaskPanicError{TaskID: n.id, Name: n.name, PanicValue: r, Stack: stack})
			p.metrics.RecordTaskPanic(p.id, r)
			p.panicHandler.HandlePanic(ctx, p.id, workerID, r, stack)
		}

		finishedAt := time.Now()
		duration := finishedAt.Sub(startedAt)
		p.metrics.RecordTaskDuration(p.id, duration)

		record := TaskExecutionRecord{
			TaskID:     n.id,
			Name:       n.name,
			PoolID:     p.id,
			WorkerID:   workerID,
			Stolen:     n.stolen,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Panicked:   panicked,
		}
		if n.parent != nil {
			record.ParentID = n.parent.id
		}
		p.history.Add(record)

		close(n.bodyDone)
	}()

	n.task(ctx)
	returned = true
}

// drain runs every unclaimed child of n on the calling goroutine until n's
// queue is empty.
func (p *WorkerPool) drain(w *worker, n *taskNode) {
	for {
		child, ok := n.children.Pop()
		if !ok {
			return
		}
		if p.claim(child) {
			p.runNode(w, child, false)
		}
	}
}

func (p *WorkerPool) complete(n *taskNode) {
	n.setState(TaskStateCompleted)
	if n.parent != nil {
		n.parent.childFinished(n.Err())
	}
	p.completed.Add(1)
	p.barrier.Done()
	close(n.done)
}

// =============================================================================
// Submission
// =============================================================================

// Submit queues task with default traits. See SubmitWithTraits.
func (p *WorkerPool) Submit(ctx context.Context, task Task) *TaskHandle {
	return p.SubmitWithTraits(ctx, task, DefaultTaskTraits())
}

// SubmitOrphan queues task in the orphan queue regardless of ctx.
func (p *WorkerPool) SubmitOrphan(task Task) *TaskHandle {
	return p.SubmitWithTraits(context.Background(), task, TraitsOrphan())
}

// SubmitWithTraits wraps task in a new node. When ctx belongs to a task
// running in this pool and traits.Orphan is false, the node becomes a child
// of that task; otherwise it is queued in the orphan queue.
//
// A full queue is fatal: SubmitWithTraits panics with *QueueOverflowError.
// Submitting to a destroyed pool panics as well.
func (p *WorkerPool) SubmitWithTraits(ctx context.Context, task Task, traits TaskTraits) *TaskHandle {
	if task == nil {
		panic("forkjoin: nil task")
	}
	if p.destroyed.Load() {
		panic(errors.Wrapf(ErrPoolDestroyed, "submit to pool %s", p.id))
	}

	// owner is the task submitting, if any; it also answers for an overflow
	var owner, parent *taskNode
	if e := executionFrom(ctx); e != nil && e.pool == p && e.node.State() != TaskStateCompleted {
		owner = e.node
		if !traits.Orphan {
			parent = owner
		}
	}

	n := newTaskNode(task, traits.Name, parent, p.config.ChildQueueCapacity)
	n.setState(TaskStateQueued)
	p.barrier.Add(1)
	p.awaiting.Add(1)

	if parent != nil {
		parent.addChild()
		if !parent.children.TryPush(n) {
			parent.childFinished(nil)
			p.overflow(QueueChild, parent, owner)
		}
	} else {
		if !p.orphans.TryPush(n) {
			p.overflow(QueueOrphan, nil, owner)
		}
		p.metrics.RecordQueueDepth(p.id, QueueOrphan, p.orphans.Len())
	}

	p.submitted.Add(1)
	close(n.released)
	p.wakeOne()
	return &TaskHandle{node: n, pool: p}
}

// overflow rolls back the counters of a node that could not be queued, then
// panics. The error is also recorded on the submitting task, so a body that
// recovers the panic still fails itself and every ancestor join.
func (p *WorkerPool) overflow(queue string, parent, owner *taskNode) {
	p.awaiting.Add(-1)
	p.barrier.Done()

	err := &QueueOverflowError{PoolID: p.id, Queue: queue}
	if parent != nil {
		err.ParentID = parent.id
		err.Capacity = parent.children.Cap()
	} else {
		err.Capacity = p.orphans.Cap()
	}
	if owner != nil {
		owner.fail(err)
	}

	p.metrics.RecordQueueOverflow(p.id, queue)
	p.logger.Error("queue overflow",
		F("pool", p.id),
		F("queue", queue),
		F("capacity", err.Capacity))
	panic(err)
}

// =============================================================================
// Joins
// =============================================================================

// WaitChildren blocks until every child the current task has submitted so
// far, and their descendants, have completed. Unclaimed children are run on
// the calling goroutine first. It must be called with the ctx passed to a
// task of this pool and does not wait for the task's own body.
func (p *WorkerPool) WaitChildren(ctx context.Context) error {
	e := executionFrom(ctx)
	if e == nil || e.pool != p || e.node == nil {
		return ErrNotInTask
	}
	p.drain(e.worker, e.node)
	e.node.waitPending()
	return e.node.Err()
}

// WaitChildren joins the children of the task running with ctx in whichever
// pool executes it.
func WaitChildren(ctx context.Context) error {
	e := executionFrom(ctx)
	if e == nil {
		return ErrNotInTask
	}
	return e.pool.WaitChildren(ctx)
}

// PoolFromContext returns the pool running the task that owns ctx, or nil.
func PoolFromContext(ctx context.Context) *WorkerPool {
	if e := executionFrom(ctx); e != nil {
		return e.pool
	}
	return nil
}

// DrainBarrier blocks until no task is queued or executing anywhere in the
// pool. Calling it from inside a task of this pool never returns.
func (p *WorkerPool) DrainBarrier() {
	p.barrier.Wait()
}

// DrainBarrierTimeout is DrainBarrier with an upper bound on the wait.
func (p *WorkerPool) DrainBarrierTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.barrier.WaitContext(ctx); err != nil {
		return errors.Errorf("drain barrier timeout after %v with %d tasks outstanding", timeout, p.barrier.Count())
	}
	return nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Destroy stops every worker and waits until all of them have exited.
// Outstanding tasks must have drained first; queued orphans are dropped.
// Calling Destroy more than once is safe.
func (p *WorkerPool) Destroy() {
	p.destroyOnce.Do(func() {
		p.destroyed.Store(true)

		if outstanding := p.barrier.Count(); outstanding > 0 {
			p.logger.Warn("destroying worker pool with outstanding tasks",
				F("pool", p.id), F("outstanding", outstanding))
		}

		p.cancel()
		p.exited.Wait()

		for _, w := range p.workers {
			w.current.Store(nil)
		}
		p.orphans.Clear()

		p.logger.Info("worker pool destroyed",
			F("pool", p.id),
			F("submitted", p.submitted.Load()),
			F("completed", p.completed.Load()))
	})
}

// DestroyGraceful waits up to timeout for outstanding tasks, then destroys
// the pool. The pool is destroyed even when the timeout is exceeded.
func (p *WorkerPool) DestroyGraceful(timeout time.Duration) error {
	err := p.DrainBarrierTimeout(timeout)
	p.Destroy()
	return err
}

// =============================================================================
// Observability
// =============================================================================

func (p *WorkerPool) ID() string       { return p.id }
func (p *WorkerPool) WorkerCount() int { return len(p.workers) }
func (p *WorkerPool) IsRunning() bool  { return !p.destroyed.Load() }

// TotalTasks returns the number of submitted tasks not yet completed.
func (p *WorkerPool) TotalTasks() int { return p.barrier.Count() }

// AwaitingTasks returns the number of queued tasks nobody has claimed yet.
func (p *WorkerPool) AwaitingTasks() int { return int(p.awaiting.Load()) }

// ActiveTaskCount returns the number of task bodies executing right now.
func (p *WorkerPool) ActiveTaskCount() int { return int(p.active.Load()) }

// Stats returns current observability data for this pool.
func (p *WorkerPool) Stats() PoolStats {
	stats := PoolStats{
		ID:            p.id,
		Workers:       len(p.workers),
		Running:       p.IsRunning(),
		TotalTasks:    p.TotalTasks(),
		AwaitingTasks: p.AwaitingTasks(),
		Active:        p.ActiveTaskCount(),
		OrphanQueued:  p.orphans.Len(),
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Stolen:        p.stolen.Load(),
		Panicked:      p.panicked.Load(),
		WorkerStats:   make([]WorkerStats, len(p.workers)),
	}
	for i, w := range p.workers {
		stats.WorkerStats[i] = WorkerStats{
			ID:       w.id,
			Executed: w.executed.Load(),
			Stolen:   w.stolen.Load(),
			Busy:     w.current.Load() != nil,
		}
	}
	return stats
}

// RecentTasks returns completed task execution records in newest-first order.
func (p *WorkerPool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}
