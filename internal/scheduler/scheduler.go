// Package scheduler picks the work that may run next. The package-level
// functions are pure over a task map; Scheduler runs them over consistent
// store snapshots.
package scheduler

import (
	"sort"
	"time"

	"github.com/aristath/tascade/internal/task"
)

// DefaultQueueLimit is the queue length used when a caller passes limit <= 0.
const DefaultQueueLimit = 5

// Candidate is an eligible task together with the values it was ranked by.
type Candidate struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Status           task.Status   `json:"status"`
	Priority         task.Priority `json:"priority"`
	PriorityWeight   int           `json:"priority_value"`
	Complexity       float64       `json:"complexity"`
	Dependencies     []string      `json:"dependencies"`
	IsSubtask        bool          `json:"is_subtask"`
	ParentID         string        `json:"parent_id,omitempty"`
	ParentInProgress bool          `json:"parent_in_progress"`

	createdAt time.Time
}

func candidateOf(t *task.Task) Candidate {
	return Candidate{
		ID:             t.ID,
		Title:          t.Title,
		Status:         t.Status,
		Priority:       t.Priority,
		PriorityWeight: t.Priority.Weight(),
		Complexity:     t.Complexity(),
		Dependencies:   append([]string{}, t.Dependencies...),
		createdAt:      t.CreatedAt,
	}
}

// IsEligible reports whether t is pending and every dependency resolves to a
// done task. A dependency that does not exist is never satisfied.
func IsEligible(tasks map[string]*task.Task, t *task.Task) bool {
	if t.Status != task.StatusPending {
		return false
	}
	for _, dep := range t.Dependencies {
		d, ok := tasks[dep]
		if !ok || d.Status != task.StatusDone {
			return false
		}
	}
	return true
}

// Eligible returns every eligible task ranked best first: priority weight
// descending, then complexity ascending. Creation time and ID break the
// remaining ties so the ranking is stable across calls.
func Eligible(tasks map[string]*task.Task) []Candidate {
	out := []Candidate{}
	for _, t := range tasks {
		if IsEligible(tasks, t) {
			out = append(out, candidateOf(t))
		}
	}
	rank(out)
	return out
}

// FindNextTask returns the best eligible task, or nil when nothing can run.
func FindNextTask(tasks map[string]*task.Task) *Candidate {
	eligible := Eligible(tasks)
	if len(eligible) == 0 {
		return nil
	}
	return &eligible[0]
}

// FindNextTaskWithSubtasks is FindNextTask, except that eligible subtasks of
// in-progress parents outrank every other task regardless of priority.
func FindNextTaskWithSubtasks(tasks map[string]*task.Task) *Candidate {
	ranked := rankedWithSubtasks(tasks)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

func rankedWithSubtasks(tasks map[string]*task.Task) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)

	for _, parentID := range sortedIDs(tasks) {
		parent := tasks[parentID]
		if parent.Status != task.StatusInProgress || len(parent.Subtasks) == 0 {
			continue
		}
		for _, childID := range parent.Subtasks {
			child, ok := tasks[childID]
			if !ok || seen[childID] || !IsEligible(tasks, child) {
				continue
			}
			seen[childID] = true
			c := candidateOf(child)
			c.IsSubtask = true
			c.ParentID = parentID
			c.ParentInProgress = true
			out = append(out, c)
		}
	}

	for _, t := range tasks {
		if !seen[t.ID] && IsEligible(tasks, t) {
			out = append(out, candidateOf(t))
		}
	}

	rank(out)
	return out
}

// TaskQueue simulates a single worker: it repeatedly takes the next task
// (subtasks of in-progress parents first) and marks it done in a private
// copy, so later picks see that completion. The real tasks are untouched.
// limit <= 0 uses DefaultQueueLimit.
func TaskQueue(tasks map[string]*task.Task, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}

	working := task.CloneAll(tasks)
	queue := []Candidate{}

	for len(queue) < limit {
		next := FindNextTaskWithSubtasks(working)
		if next == nil {
			break
		}
		queue = append(queue, *next)
		working[next.ID].Status = task.StatusDone
	}

	return queue
}

func rank(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		if a.ParentInProgress != b.ParentInProgress {
			return a.ParentInProgress
		}
		if a.PriorityWeight != b.PriorityWeight {
			return a.PriorityWeight > b.PriorityWeight
		}
		if a.Complexity != b.Complexity {
			return a.Complexity < b.Complexity
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.ID < b.ID
	})
}

func sortedIDs(tasks map[string]*task.Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
