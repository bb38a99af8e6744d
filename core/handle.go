package core

import "context"

// TaskHandle is returned by Submit and joins the submitted task.
type TaskHandle struct {
	node *taskNode
	pool *WorkerPool
}

func (h *TaskHandle) ID() TaskID       { return h.node.id }
func (h *TaskHandle) Name() string     { return h.node.name }
func (h *TaskHandle) State() TaskState { return h.node.State() }

// Done reports whether the task and its whole subtree have completed.
func (h *TaskHandle) Done() bool {
	select {
	case <-h.node.done:
		return true
	default:
		return false
	}
}

// Wait joins the task from a goroutine that is not running a task of the
// pool. See WaitContext.
func (h *TaskHandle) Wait() error {
	return h.WaitContext(context.Background())
}

// WaitContext blocks until the task's body has returned and all of its
// descendants have completed, then returns the first failure recorded in
// the subtree.
//
// When ctx belongs to a task running in the same pool and the awaited task
// has not been claimed yet, the caller claims it and runs it inline, so
// nested joins never leave every worker blocked on queued work. Otherwise
// the caller helps by running the task's unclaimed children before blocking.
func (h *TaskHandle) WaitContext(ctx context.Context) error {
	p, n := h.pool, h.node

	var w *worker
	if e := executionFrom(ctx); e != nil && e.pool == p {
		for a := e.node; a != nil; a = a.parent {
			if a == n {
				return ErrSelfWait
			}
		}
		w = e.worker
		if p.claim(n) {
			p.runNode(w, n, false)
			return n.Err()
		}
	}

	p.drain(w, n)
	<-n.bodyDone
	// Children submitted after the first drain
	p.drain(w, n)
	n.waitPending()
	<-n.done
	return n.Err()
}
