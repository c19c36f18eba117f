package scheduler

import (
	"time"

	"github.com/aristath/tascade/internal/store"
	"github.com/aristath/tascade/internal/task"
)

// Scheduler answers scheduling queries against a live store. Each call works
// on one snapshot, so concurrent lifecycle changes can never make a query
// see a half-updated graph or return the same task twice.
type Scheduler struct {
	store             *store.TaskStore
	queueLimit        int
	defaultComplexity float64
}

// New creates a Scheduler. queueLimit <= 0 falls back to DefaultQueueLimit and
// defaultComplexity <= 0 to task.DefaultComplexity.
func New(s *store.TaskStore, queueLimit int, defaultComplexity float64) *Scheduler {
	if queueLimit <= 0 {
		queueLimit = DefaultQueueLimit
	}
	if defaultComplexity <= 0 {
		defaultComplexity = task.DefaultComplexity
	}
	return &Scheduler{
		store:             s,
		queueLimit:        queueLimit,
		defaultComplexity: defaultComplexity,
	}
}

// snapshot copies the store and fills in the configured default complexity.
func (s *Scheduler) snapshot() map[string]*task.Task {
	tasks := s.store.Snapshot()
	if s.defaultComplexity != task.DefaultComplexity {
		for _, t := range tasks {
			if t.ComplexityScore == nil {
				t.ComplexityScore = task.Float(s.defaultComplexity)
			}
		}
	}
	return tasks
}

// Eligible ranks every task that may start now.
func (s *Scheduler) Eligible() []Candidate {
	return Eligible(s.snapshot())
}

// Next returns the best eligible top-level task, or nil.
func (s *Scheduler) Next() *Candidate {
	return FindNextTask(s.snapshot())
}

// NextWithSubtasks returns the best eligible task, preferring subtasks of
// in-progress parents.
func (s *Scheduler) NextWithSubtasks() *Candidate {
	return FindNextTaskWithSubtasks(s.snapshot())
}

// Queue returns the simulated work order. limit <= 0 uses the configured limit.
func (s *Scheduler) Queue(limit int) []Candidate {
	if limit <= 0 {
		limit = s.queueLimit
	}
	return TaskQueue(s.snapshot(), limit)
}

// Estimate projects completion from the tasks' execution history.
func (s *Scheduler) Estimate(now time.Time) Estimate {
	return EstimateCompletionTime(s.snapshot(), now)
}
