// Package forkjoin provides a work-stealing fork-join task scheduler for Go.
//
// A Pool owns a fixed set of persistent worker goroutines. Work is submitted
// as closures ("tasks"); a task running in the pool can fork child tasks with
// the context it was given and later join them. Idle workers steal unclaimed
// children from the tasks other workers are running, and fall back to a
// bounded pool-wide orphan queue for work submitted from outside.
//
// # Quick Start
//
//	pool := forkjoin.NewPool(-1) // one worker per CPU
//	defer pool.Destroy()
//
//	pool.SubmitOrphan(func(ctx context.Context) {
//		for i := range 4 {
//			pool.Submit(ctx, func(ctx context.Context) {
//				process(i)
//			})
//		}
//		forkjoin.WaitChildren(ctx) // all four children are done here
//	})
//
//	pool.DrainBarrier() // nothing is queued or running anywhere
//
// # Key Concepts
//
// Child task: a task submitted with the context of a running task. The
// parent completes only after every child, transitively, has completed.
//
// Orphan task: a task submitted from outside the pool, or with the Orphan
// trait. It has no parent and is queued in the orphan queue.
//
// Joins: TaskHandle.Wait joins one task and its subtree, WaitChildren joins
// the current task's children from inside its body, and DrainBarrier waits
// until the whole pool is idle.
//
// # Bounded Queues
//
// Every task has its own bounded child queue and the pool has one bounded
// orphan queue. Pushing into a full queue is fatal: Submit panics with a
// *QueueOverflowError and workers never swallow it.
//
// # Failures
//
// A panicking task body is recovered, reported to the PanicHandler and
// returned as a *TaskPanicError from the joins of the task and its ancestors.
// Tasks are never retried or cancelled.
package forkjoin
