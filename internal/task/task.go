// Package task defines the task record shared by every tascade component.
package task

import (
	"time"

	"github.com/google/uuid"
)

// DefaultComplexity is used for scheduling when a task has no complexity score.
const DefaultComplexity = 5.0

// DefaultUser attributes history entries when the caller names nobody.
const DefaultUser = "system"

// HistoryEntry is one immutable record in a task's change log.
type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	User        string    `json:"user"`
	Description string    `json:"description"`
}

// Blocker records an external impediment raised by Block and cleared by Unblock.
type Blocker struct {
	Timestamp   time.Time  `json:"timestamp"`
	Description string     `json:"description"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
}

// Details holds lifecycle bookkeeping. The lifecycle controller is its only writer.
type Details struct {
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds  *float64       `json:"duration_seconds,omitempty"`
	TimeSpentSeconds float64        `json:"time_spent_seconds,omitempty"`
	Blockers         []Blocker      `json:"blockers,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Metrics summarizes one execution attempt.
type Metrics struct {
	TimeSpent      *float64 `json:"time_spent,omitempty"` // seconds
	StepsCompleted int      `json:"steps_completed"`
	TotalSteps     int      `json:"total_steps"`
}

// ExecutionLog is a line in the execution log of a task.
type ExecutionLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// ExecutionStep is a named step reported while a task executes.
type ExecutionStep struct {
	Name      string    `json:"step_name"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"details,omitempty"`
}

// ExecutionContext tracks a run started through StartExecution.
type ExecutionContext struct {
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Status    string          `json:"status,omitempty"`
	Notes     string          `json:"completion_notes,omitempty"`
	Output    string          `json:"output,omitempty"`
	Metrics   *Metrics        `json:"metrics,omitempty"`
	Steps     []ExecutionStep `json:"steps,omitempty"`
	Logs      []ExecutionLog  `json:"logs,omitempty"`
}

// Task is the central entity: a unit of work with dependencies and a change log.
type Task struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Status           Status            `json:"status"`
	Priority         Priority          `json:"priority"`
	Dependencies     []string          `json:"dependencies"`
	Subtasks         []string          `json:"subtasks"`
	ComplexityScore  *float64          `json:"complexity_score,omitempty"`
	History          []HistoryEntry    `json:"history"`
	Details          Details           `json:"details"`
	ExecutionContext *ExecutionContext `json:"execution_context,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// New creates a pending, medium-priority task with a fresh UUID and a
// "created" history entry.
func New(title string, now time.Time) *Task {
	t := &Task{
		ID:           uuid.NewString(),
		Title:        title,
		Status:       StatusPending,
		Priority:     PriorityMedium,
		Dependencies: []string{},
		Subtasks:     []string{},
		History:      []HistoryEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	t.AddHistory(now, DefaultUser, "created: "+title)
	return t
}

// Complexity returns the complexity score, or DefaultComplexity when unset.
func (t *Task) Complexity() float64 {
	if t.ComplexityScore == nil {
		return DefaultComplexity
	}
	return *t.ComplexityScore
}

// DependsOn reports whether id is listed in the task's dependencies.
func (t *Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// AddHistory appends an entry and touches UpdatedAt.
func (t *Task) AddHistory(now time.Time, user, description string) {
	if user == "" {
		user = DefaultUser
	}
	t.History = append(t.History, HistoryEntry{
		Timestamp:   now,
		User:        user,
		Description: description,
	})
	t.UpdatedAt = now
}

// LastHistory returns the most recent history entry, if any.
func (t *Task) LastHistory() (HistoryEntry, bool) {
	if len(t.History) == 0 {
		return HistoryEntry{}, false
	}
	return t.History[len(t.History)-1], true
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	cp.Dependencies = cloneStrings(t.Dependencies)
	cp.Subtasks = cloneStrings(t.Subtasks)
	cp.ComplexityScore = cloneFloat(t.ComplexityScore)
	if t.History != nil {
		cp.History = append([]HistoryEntry(nil), t.History...)
	}
	cp.Details = t.Details.clone()
	if t.ExecutionContext != nil {
		ec := t.ExecutionContext.clone()
		cp.ExecutionContext = &ec
	}
	return &cp
}

func (d Details) clone() Details {
	cp := d
	cp.StartedAt = cloneTime(d.StartedAt)
	cp.CompletedAt = cloneTime(d.CompletedAt)
	cp.DurationSeconds = cloneFloat(d.DurationSeconds)
	if d.Blockers != nil {
		cp.Blockers = make([]Blocker, len(d.Blockers))
		for i, b := range d.Blockers {
			b.ResolvedAt = cloneTime(b.ResolvedAt)
			cp.Blockers[i] = b
		}
	}
	if d.Extra != nil {
		cp.Extra = cloneValue(d.Extra).(map[string]any)
	}
	return cp
}

func (e ExecutionContext) clone() ExecutionContext {
	cp := e
	cp.StartTime = cloneTime(e.StartTime)
	cp.EndTime = cloneTime(e.EndTime)
	if e.Metrics != nil {
		m := *e.Metrics
		m.TimeSpent = cloneFloat(e.Metrics.TimeSpent)
		cp.Metrics = &m
	}
	if e.Steps != nil {
		cp.Steps = append([]ExecutionStep(nil), e.Steps...)
	}
	if e.Logs != nil {
		cp.Logs = append([]ExecutionLog(nil), e.Logs...)
	}
	return cp
}

// CloneAll deep-copies a task map.
func CloneAll(tasks map[string]*Task) map[string]*Task {
	out := make(map[string]*Task, len(tasks))
	for id, t := range tasks {
		out[id] = t.Clone()
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// cloneValue copies the JSON-shaped values stored in Details.Extra.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, val := range x {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return x
	}
}

// Float returns a pointer to f; handy for optional numeric fields.
func Float(f float64) *float64 { return &f }
