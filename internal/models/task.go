package models

import "time"

// Priority is a task's declared urgency (§4.1). Lower numeric level is more
// urgent; the numbers below double as the "base" priority score term.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
	PriorityDeferred Priority = "deferred"
)

// Level returns the numeric base used in the priority-score formula (§4.1):
// critical=1 ... deferred=5, lower is more urgent.
func (p Priority) Level() float64 {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	case PriorityDeferred:
		return 5
	default:
		return 3
	}
}

// TaskState is a task's position in the state machine (§4.1).
type TaskState string

const (
	TaskQueued         TaskState = "queued"
	TaskRunning        TaskState = "running"
	TaskCompleted      TaskState = "completed"
	TaskFailedRetryable TaskState = "failed_retryable"
	TaskFailedTerminal TaskState = "failed_terminal"
	TaskDeferred       TaskState = "deferred"
	TaskCancelled      TaskState = "cancelled"
)

// Handler is the function a task runs. It must check ctx/cancellation at
// natural checkpoints (§5 suspension points).
type Handler func(ctx *RunContext) (result any, err error)

// RunContext is passed to a running handler; Cancelled is the cooperative
// cancel flag described in §5.
type RunContext struct {
	TaskID    string
	Cancelled func() bool
}

// Task is one unit of scheduled work (§4.1).
type Task struct {
	ID           string
	Name         string
	Handler      Handler
	Priority     Priority
	CreatedAt    time.Time
	Deadline     *time.Time
	UserTriggered bool
	Dependencies map[string]struct{}
	MaxRetries   int

	Retries    int
	State      TaskState
	LastError  string
	Result     any
}

// NewTask builds a task with spec defaults (max_retries = 3, §4.1).
func NewTask(id, name string, handler Handler, priority Priority) *Task {
	return &Task{
		ID:           id,
		Name:         name,
		Handler:      handler,
		Priority:     priority,
		CreatedAt:    time.Now().UTC(),
		Dependencies: map[string]struct{}{},
		MaxRetries:   3,
		State:        TaskQueued,
	}
}

// PeriodicTask is a `register_periodic` entry (§4.1).
type PeriodicTask struct {
	Name      string
	Handler   Handler
	Interval  time.Duration
	Priority  Priority
	NextFire  time.Time
	CronSpec  string // optional; when set, NextFire is computed by a cron.Schedule instead of Interval
}

// TaskStatus is the status() response shape (§4.1).
type TaskStatus struct {
	State     TaskState
	Retries   int
	LastError string
	Result    any
}
