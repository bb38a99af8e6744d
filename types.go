package forkjoin

import "github.com/Swind/go-forkjoin/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the forkjoin package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskID uniquely identifies a submitted task
type TaskID = core.TaskID

// TaskTraits defines task attributes (name, orphan placement)
type TaskTraits = core.TaskTraits

// TaskState is the lifecycle state of a task
type TaskState = core.TaskState

// TaskHandle joins a submitted task
type TaskHandle = core.TaskHandle

// PoolStats and TaskExecutionRecord expose pool observability data
type (
	PoolStats           = core.PoolStats
	WorkerStats         = core.WorkerStats
	TaskExecutionRecord = core.TaskExecutionRecord
)

// Pluggable handlers
type (
	Logger       = core.Logger
	Metrics      = core.Metrics
	PanicHandler = core.PanicHandler
)

// Errors
type (
	QueueOverflowError = core.QueueOverflowError
	TaskPanicError     = core.TaskPanicError
)

var (
	ErrQueueFull     = core.ErrQueueFull
	ErrNotInTask     = core.ErrNotInTask
	ErrSelfWait      = core.ErrSelfWait
	ErrTaskExited    = core.ErrTaskExited
	ErrPoolDestroyed = core.ErrPoolDestroyed
)

// State constants
const (
	TaskStateCreated   = core.TaskStateCreated
	TaskStateQueued    = core.TaskStateQueued
	TaskStateRunning   = core.TaskStateRunning
	TaskStateDraining  = core.TaskStateDraining
	TaskStateCompleted = core.TaskStateCompleted
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits = core.DefaultTaskTraits
	TraitsOrphan      = core.TraitsOrphan
)

// WaitChildren joins the children of the task running with ctx. It returns
// ErrNotInTask when ctx does not belong to a running task.
var WaitChildren = core.WaitChildren

// CurrentTaskID retrieves the ID of the task running with ctx
var CurrentTaskID = core.CurrentTaskID

// CurrentWorkerID retrieves the worker running the task that owns ctx
var CurrentWorkerID = core.CurrentWorkerID
