package lifecycle

import (
	"fmt"
	"time"

	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/task"
)

// Execution context statuses.
const (
	ExecRunning   = "in_progress"
	ExecCompleted = "completed"
	ExecFailed    = "failed"
)

// Step statuses accepted by LogStep.
const (
	StepStarted   = "started"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

func executing(t *task.Task) bool {
	ec := t.ExecutionContext
	return ec != nil && ec.StartTime != nil && ec.Status == ExecRunning
}

// StartExecution claims a pending task for a tracked run: the task moves to
// in_progress and gets a fresh execution context. Anything not pending is
// rejected, so two workers can never claim the same task.
func (c *Controller) StartExecution(id, user string) Result {
	user = c.user(user)
	res := c.apply(id, "start execution of", func(tasks map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		if t.Status != task.StatusPending {
			return nil, reject("task is not pending (status %s)", t.Status)
		}
		warnings, err := c.startChecks(tasks, t)
		if err != nil {
			return nil, err
		}

		start := now
		t.ExecutionContext = &task.ExecutionContext{
			StartTime: &start,
			Status:    ExecRunning,
			Logs:      []task.ExecutionLog{{Timestamp: now, Level: "info", Message: "Task execution started"}},
		}
		markStarted(t, now)
		t.AddHistory(now, user, "started: execution started")
		return warnings, nil
	})

	if res.Ok() {
		c.publish(events.TaskStartedEvent{
			ID: id, Title: res.Task.Title, User: user, Warnings: res.Warnings, Timestamp: res.Task.UpdatedAt,
		})
	}
	return res
}

// LogStep records a named step of a running execution. It adds to the
// execution log only; no history entry is written.
func (c *Controller) LogStep(id, step, status, detail string) Result {
	return c.apply(id, "log step for", func(_ map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		if !executing(t) {
			return nil, reject("task is not being executed")
		}
		switch status {
		case StepStarted, StepCompleted, StepFailed:
		default:
			return nil, reject("unknown step status %q", status)
		}

		ec := t.ExecutionContext
		ec.Steps = append(ec.Steps, task.ExecutionStep{Name: step, Status: status, Timestamp: now, Detail: detail})

		msg := fmt.Sprintf("Step '%s' %s", step, status)
		if detail != "" {
			msg += ": " + detail
		}
		ec.Logs = append(ec.Logs, task.ExecutionLog{Timestamp: now, Level: "info", Message: msg})
		t.UpdatedAt = now
		return nil, nil
	})
}

// FinishExecution closes the run started by StartExecution. The elapsed time
// is stored as the run's time_spent metric, which feeds completion estimates.
// On success the task completes as with Complete; otherwise it fails.
func (c *Controller) FinishExecution(id string, success bool, notes, output, user string) Result {
	user = c.user(user)
	var unblocked []string

	res := c.apply(id, "finish execution of", func(tasks map[string]*task.Task, t *task.Task, now time.Time) ([]string, error) {
		if !executing(t) {
			return nil, reject("task is not being executed")
		}

		ec := t.ExecutionContext
		end := now
		ec.EndTime = &end
		ec.Notes = notes
		ec.Output = output

		completed := 0
		for _, s := range ec.Steps {
			if s.Status == StepCompleted {
				completed++
			}
		}
		ec.Metrics = &task.Metrics{
			TimeSpent:      task.Float(now.Sub(*ec.StartTime).Seconds()),
			StepsCompleted: completed,
			TotalSteps:     len(ec.Steps),
		}

		level, msg := "info", "Task execution completed successfully"
		if !success {
			level, msg = "error", "Task execution failed"
		}
		if notes != "" {
			msg += ": " + notes
		}
		ec.Logs = append(ec.Logs, task.ExecutionLog{Timestamp: now, Level: level, Message: msg})

		detail := notes
		if success {
			ec.Status = ExecCompleted
			if detail == "" {
				detail = "execution completed"
			}
			unblocked = markCompleted(tasks, t, now, user, "completed: "+detail)
			return nil, nil
		}

		ec.Status = ExecFailed
		if detail == "" {
			detail = "execution failed"
		}
		markFailed(t, now)
		t.AddHistory(now, user, "failed: "+detail)
		return nil, nil
	})

	if !res.Ok() {
		return res
	}
	if success {
		c.publishCompleted(res.Task, user, unblocked)
	} else {
		c.publish(events.TaskFailedEvent{ID: id, Reason: notes, User: user, Timestamp: res.Task.UpdatedAt})
	}
	return res
}
