// Package lifecycle owns task status changes. It is the only writer of a
// task's status, lifecycle details and execution context, and it records
// every transition in the task history.
package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/store"
	"github.com/aristath/tascade/internal/task"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	DefaultUser string           // attributed when an operation names no user (default "system")
	StrictStart bool             // reject Start while dependencies are unfinished
	Bus         *events.Bus      // optional; nil disables events
	Logger      *log.Logger      // optional; nil uses log.Default()
	Now         func() time.Time // optional clock (default time.Now in UTC)
}

// Controller applies lifecycle transitions to tasks held in a store.
type Controller struct {
	store  *store.TaskStore
	config ControllerConfig
}

// NewController creates a controller over s.
func NewController(s *store.TaskStore, cfg ControllerConfig) *Controller {
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = task.DefaultUser
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Controller{store: s, config: cfg}
}

// rejection aborts a transition and leaves the store untouched.
type rejection struct {
	reason string
}

func (r *rejection) Error() string { return r.reason }

func reject(format string, args ...any) error {
	return &rejection{reason: fmt.Sprintf(format, args...)}
}

// change is the body of one transition. It runs under the store write lock
// with the whole task map and must reject before touching t.
type change func(tasks map[string]*task.Task, t *task.Task, now time.Time) (warnings []string, err error)

func (c *Controller) apply(id, action string, fn change) Result {
	now := c.config.Now()
	var res Result

	err := c.store.Mutate(func(tasks map[string]*task.Task) error {
		t, ok := tasks[id]
		if !ok {
			return store.ErrNotFound
		}
		warnings, err := fn(tasks, t, now)
		res.Warnings = warnings
		res.Task = t.Clone()
		return err
	})

	var rej *rejection
	switch {
	case err == nil:
		res.Outcome = Applied
	case errors.Is(err, store.ErrNotFound):
		res.Outcome = NotFound
		res.Reason = fmt.Sprintf("task %s not found", id)
		res.Task = nil
		c.config.Logger.Printf("WARNING: cannot %s: %s", action, res.Reason)
	case errors.As(err, &rej):
		res.Outcome = InvalidState
		res.Reason = rej.reason
		c.config.Logger.Printf("WARNING: cannot %s task %s: %s", action, id, rej.reason)
	default:
		res.Outcome = InvalidState
		res.Reason = err.Error()
		c.config.Logger.Printf("ERROR: %s task %s: %v", action, id, err)
	}

	for _, w := range res.Warnings {
		c.config.Logger.Printf("WARNING: task %s: %s", id, w)
	}
	return res
}

func (c *Controller) user(u string) string {
	if u == "" {
		return c.config.DefaultUser
	}
	return u
}

// unmetDependencies lists dependencies that are missing or not done.
func unmetDependencies(tasks map[string]*task.Task, t *task.Task) []string {
	var unmet []string
	for _, dep := range t.Dependencies {
		if d, ok := tasks[dep]; !ok || d.Status != task.StatusDone {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// startChecks applies the dependency policy shared by Start and StartExecution.
func (c *Controller) startChecks(tasks map[string]*task.Task, t *task.Task) ([]string, error) {
	unmet := unmetDependencies(tasks, t)
	if len(unmet) == 0 {
		return nil, nil
	}
	msg := "incomplete dependencies: " + strings.Join(unmet, ", ")
	if c.config.StrictStart {
		return nil, reject("%s", msg)
	}
	return []string{msg}, nil
}

// Start moves a task to in_progress from any state and records when work
// began. Unfinished dependencies produce a warning, or a rejection when
// StrictStart is set.
func (c *Controller) Start(id, user string) Result {
	user = c.user(user)
	res := c.apply(id, "start", func(tasks map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		warnings, err := c.startChecks(tasks, t)
		if err != nil {
			return nil, err
		}
		markStarted(t, now)
		t.AddHistory(now, user, "started: task marked as in progress")
		return warnings, nil
	})

	if res.Ok() {
		c.publish(events.TaskStartedEvent{
			ID: id, Title: res.Task.Title, User: user, Warnings: res.Warnings, Timestamp: res.Task.UpdatedAt,
		})
	}
	return res
}

func markStarted(t *task.Task, now time.Time) {
	t.Status = task.StatusInProgress
	if t.Details.StartedAt == nil {
		started := now
		t.Details.StartedAt = &started
	}
}

// Complete marks a task done from any state, records completion time and
// duration, and notes which dependents now have every dependency done.
func (c *Controller) Complete(id, notes, user string) Result {
	user = c.user(user)
	var unblocked []string

	res := c.apply(id, "complete", func(tasks map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		detail := "task marked as done"
		if notes != "" {
			detail = notes
		}
		unblocked = markCompleted(tasks, t, now, user, "completed: "+detail)
		return nil, nil
	})

	if res.Ok() {
		c.publishCompleted(res.Task, user, unblocked)
	}
	return res
}

// markCompleted finishes t and returns the dependents it unblocked.
func markCompleted(tasks map[string]*task.Task, t *task.Task, now time.Time, user, entry string) []string {
	t.Status = task.StatusDone
	completed := now
	t.Details.CompletedAt = &completed
	if t.Details.StartedAt != nil {
		t.Details.DurationSeconds = task.Float(now.Sub(*t.Details.StartedAt).Seconds())
	}
	t.AddHistory(now, user, entry)

	unblocked := readyDependents(tasks, t.ID)
	if len(unblocked) > 0 {
		t.AddHistory(now, task.DefaultUser, "unblocked dependents: "+strings.Join(unblocked, ", "))
	}
	return unblocked
}

// readyDependents returns, in ID order, the tasks depending on id whose
// existing dependencies are all done.
func readyDependents(tasks map[string]*task.Task, id string) []string {
	var ready []string
	for depID, d := range tasks {
		if depID == id || !d.DependsOn(id) {
			continue
		}
		all := true
		for _, dep := range d.Dependencies {
			if x, ok := tasks[dep]; ok && x.Status != task.StatusDone {
				all = false
				break
			}
		}
		if all {
			ready = append(ready, depID)
		}
	}
	sort.Strings(ready)
	return ready
}

// Pause returns an in-progress task to pending and banks the time spent
// since it started.
func (c *Controller) Pause(id, reason, user string) Result {
	user = c.user(user)
	var spent float64

	res := c.apply(id, "pause", func(_ map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		if t.Status != task.StatusInProgress {
			return nil, reject("task is not in progress (status %s)", t.Status)
		}
		t.Status = task.StatusPending
		if t.Details.StartedAt != nil {
			t.Details.TimeSpentSeconds += now.Sub(*t.Details.StartedAt).Seconds()
			t.Details.StartedAt = nil
		}
		spent = t.Details.TimeSpentSeconds

		detail := "task paused"
		if reason != "" {
			detail = reason
		}
		t.AddHistory(now, user, "paused: "+detail)
		return nil, nil
	})

	if res.Ok() {
		c.publish(events.TaskPausedEvent{
			ID: id, Reason: reason, User: user,
			TimeSpent: time.Duration(spent * float64(time.Second)), Timestamp: res.Task.UpdatedAt,
		})
	}
	return res
}

// Block marks a task blocked from any state and records the blocker.
func (c *Controller) Block(id, description, user string) Result {
	user = c.user(user)
	res := c.apply(id, "block", func(_ map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		t.Status = task.StatusBlocked
		t.Details.Blockers = append(t.Details.Blockers, task.Blocker{Timestamp: now, Description: description})
		t.AddHistory(now, user, "blocked: "+description)
		return nil, nil
	})

	if res.Ok() {
		c.publish(events.TaskBlockedEvent{ID: id, Description: description, User: user, Timestamp: res.Task.UpdatedAt})
	}
	return res
}

// Unblock resolves the most recent blocker of a blocked task and returns it
// to pending.
func (c *Controller) Unblock(id, resolution, user string) Result {
	user = c.user(user)
	res := c.apply(id, "unblock", func(_ map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		if t.Status != task.StatusBlocked {
			return nil, reject("task is not blocked (status %s)", t.Status)
		}
		t.Status = task.StatusPending
		if n := len(t.Details.Blockers); n > 0 {
			resolved := now
			t.Details.Blockers[n-1].ResolvedAt = &resolved
			t.Details.Blockers[n-1].Resolution = resolution
		}
		t.AddHistory(now, user, "unblocked: "+resolution)
		return nil, nil
	})

	if res.Ok() {
		c.publish(events.TaskUnblockedEvent{ID: id, Resolution: resolution, User: user, Timestamp: res.Task.UpdatedAt})
	}
	return res
}

// Fail marks a task failed from any state.
func (c *Controller) Fail(id, reason, user string) Result {
	user = c.user(user)
	res := c.apply(id, "fail", func(_ map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		markFailed(t, now)
		detail := "task marked as failed"
		if reason != "" {
			detail = reason
		}
		t.AddHistory(now, user, "failed: "+detail)
		return nil, nil
	})

	if res.Ok() {
		c.publish(events.TaskFailedEvent{ID: id, Reason: reason, User: user, Timestamp: res.Task.UpdatedAt})
	}
	return res
}

func markFailed(t *task.Task, now time.Time) {
	t.Status = task.StatusFailed
	if t.Details.StartedAt != nil {
		t.Details.TimeSpentSeconds += now.Sub(*t.Details.StartedAt).Seconds()
		t.Details.StartedAt = nil
	}
}

func (c *Controller) publishCompleted(t *task.Task, user string, unblocked []string) {
	var d time.Duration
	if t.Details.DurationSeconds != nil {
		d = time.Duration(*t.Details.DurationSeconds * float64(time.Second))
	}
	c.publish(events.TaskCompletedEvent{
		ID: t.ID, Title: t.Title, User: user, Duration: d, Unblocked: unblocked, Timestamp: t.UpdatedAt,
	})
}

// publish sends a task event followed by a progress summary.
func (c *Controller) publish(ev events.Event) {
	if c.config.Bus == nil {
		return
	}
	c.config.Bus.Publish(events.TopicTask, ev)

	counts := c.store.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	c.config.Bus.Publish(events.TopicGraph, events.ProgressEvent{
		Total:      total,
		Done:       counts[task.StatusDone],
		InProgress: counts[task.StatusInProgress],
		Pending:    counts[task.StatusPending],
		Blocked:    counts[task.StatusBlocked],
		Failed:     counts[task.StatusFailed],
		Timestamp:  c.config.Now(),
	})
}
