package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	ParentID   TaskID // zero for orphans
	Name       string
	PoolID     string
	WorkerID   int // -1 when a joiner ran the task inline
	Stolen     bool
	StartedAt  time.Time
	FinishedAt time.Time // body finished; children may still have been running
	Duration   time.Duration
	Panicked   bool
}

// WorkerStats represents runtime observability state for one worker.
type WorkerStats struct {
	ID       int
	Executed uint64
	Stolen   uint64
	Busy     bool
}

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	ID      string
	Workers int
	Running bool

	// TotalTasks is the number of submitted tasks that have not completed yet.
	TotalTasks int
	// AwaitingTasks is the number of tasks queued but not yet claimed.
	AwaitingTasks int
	// Active is the number of task bodies executing right now.
	Active int
	// OrphanQueued is the depth of the orphan queue.
	OrphanQueued int

	Submitted uint64
	Completed uint64
	Stolen    uint64
	Panicked  uint64

	WorkerStats []WorkerStats
}
