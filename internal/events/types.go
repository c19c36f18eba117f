package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicGraph = "graph"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskOutput    = "task.output"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskPaused    = "task.paused"
	EventTypeTaskBlocked   = "task.blocked"
	EventTypeTaskUnblocked = "task.unblocked"
	EventTypeTaskFailed    = "task.failed"
	EventTypeProgress      = "graph.progress"
	EventTypeRepaired      = "graph.repaired"
)

// TaskStartedEvent is published when a task moves to in_progress.
type TaskStartedEvent struct {
	ID        string
	Title     string
	User      string
	Warnings  []string // e.g. unmet dependencies in permissive mode
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent carries one line of output from a running task command.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task is marked done.
type TaskCompletedEvent struct {
	ID        string
	Title     string
	User      string
	Duration  time.Duration // zero when the task was never started
	Unblocked []string      // dependents that became eligible
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskPausedEvent is published when an in-progress task goes back to pending.
type TaskPausedEvent struct {
	ID        string
	Reason    string
	User      string
	TimeSpent time.Duration // accumulated across all runs
	Timestamp time.Time
}

func (e TaskPausedEvent) EventType() string { return EventTypeTaskPaused }
func (e TaskPausedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a blocker is recorded.
type TaskBlockedEvent struct {
	ID          string
	Description string
	User        string
	Timestamp   time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// TaskUnblockedEvent is published when the latest blocker is resolved.
type TaskUnblockedEvent struct {
	ID         string
	Resolution string
	User       string
	Timestamp  time.Time
}

func (e TaskUnblockedEvent) EventType() string { return EventTypeTaskUnblocked }
func (e TaskUnblockedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task ends in failed.
type TaskFailedEvent struct {
	ID        string
	Reason    string
	User      string
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// ProgressEvent summarizes task counts by status after a transition.
type ProgressEvent struct {
	Total      int
	Done       int
	InProgress int
	Pending    int
	Blocked    int
	Failed     int
	Timestamp  time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

// RepairedEvent is published after the dependency graph was repaired.
type RepairedEvent struct {
	Removed   int // dependency edges dropped
	Passes    int
	Timestamp time.Time
}

func (e RepairedEvent) EventType() string { return EventTypeRepaired }
func (e RepairedEvent) TaskID() string    { return "" }
