// Package runner executes eligible tasks in dependency order. Each wave
// takes every task the scheduler reports as eligible and runs them with
// bounded concurrency; completing a wave can make new tasks eligible.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/lifecycle"
	"github.com/aristath/tascade/internal/scheduler"
	"github.com/aristath/tascade/internal/store"
	"github.com/aristath/tascade/internal/task"
)

// Reporter receives progress from a running handler.
type Reporter interface {
	Step(name, status, detail string)
	Output(line string)
}

// Handler does the work of one task. The returned output is stored in the
// task's execution context; a non-nil error fails the attempt.
type Handler interface {
	Run(ctx context.Context, t *task.Task, rep Reporter) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *task.Task, rep Reporter) (string, error)

func (f HandlerFunc) Run(ctx context.Context, t *task.Task, rep Reporter) (string, error) {
	return f(ctx, t, rep)
}

// keyed handlers choose the circuit breaker a task runs under.
type keyed interface {
	Key(t *task.Task) string
}

// TaskResult represents the outcome of a task execution.
type TaskResult struct {
	TaskID   string
	Success  bool
	Output   string
	Attempts int
	Duration time.Duration
	Error    error
}

// Config configures a Runner.
type Config struct {
	Concurrency int                             // Max concurrent tasks (default 4)
	TaskTimeout time.Duration                   // Per-task limit across all attempts; 0 means none
	Retry       RetryConfig                     // Zero value uses DefaultRetryConfig
	Breakers    *BreakerRegistry                // Optional; one with defaults is created
	Bus         *events.Bus                     // Optional; receives task output lines
	Logger      *log.Logger                     // Optional; nil uses log.Default()
	User        string                          // Attributed in task history (default "runner")
	Checkpoint  func(ctx context.Context) error // Optional; called after every wave
}

// Runner drives tasks through the lifecycle controller.
type Runner struct {
	config  Config
	store   *store.TaskStore
	sched   *scheduler.Scheduler
	ctrl    *lifecycle.Controller
	handler Handler

	mu      sync.Mutex
	results []TaskResult
}

// New creates a runner over the given store, scheduler and controller.
func New(cfg Config, s *store.TaskStore, sched *scheduler.Scheduler, ctrl *lifecycle.Controller, h Handler) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Breakers == nil {
		cfg.Breakers = NewBreakerRegistry(BreakerConfig{}, cfg.Logger)
	}
	if cfg.User == "" {
		cfg.User = "runner"
	}
	return &Runner{
		config:  cfg,
		store:   s,
		sched:   sched,
		ctrl:    ctrl,
		handler: h,
	}
}

// Run executes waves until no task is eligible. Task failures are recorded
// in the results and in the tasks themselves; the returned error is only set
// for cancellation or a failed checkpoint.
func (r *Runner) Run(ctx context.Context) ([]TaskResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.Results(), err
		}

		eligible := r.sched.Eligible()
		if len(eligible) == 0 {
			break
		}

		var mu sync.Mutex
		progress := 0

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.config.Concurrency)

		for _, c := range eligible {
			id := c.ID
			g.Go(func() error {
				if r.executeTask(gctx, id) {
					mu.Lock()
					progress++
					mu.Unlock()
				}
				return nil
			})
		}

		// Task errors are tracked in results, not returned here.
		_ = g.Wait()

		if r.config.Checkpoint != nil {
			if err := r.config.Checkpoint(ctx); err != nil {
				return r.Results(), fmt.Errorf("checkpoint: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return r.Results(), err
		}
		if progress == 0 {
			// Every eligible task was claimed elsewhere.
			break
		}
	}

	counts := r.store.Counts()
	r.config.Logger.Printf("run finished: %d done, %d failed, %d pending, %d blocked",
		counts[task.StatusDone], counts[task.StatusFailed], counts[task.StatusPending], counts[task.StatusBlocked])
	return r.Results(), nil
}

// Results returns a copy of the results recorded so far.
func (r *Runner) Results() []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskResult(nil), r.results...)
}

// executeTask claims, runs and finishes one task. It reports whether the
// task was claimed.
func (r *Runner) executeTask(ctx context.Context, id string) bool {
	res := r.ctrl.StartExecution(id, r.config.User)
	if !res.Ok() {
		// Another runner got there first, or the task changed since the wave began.
		return false
	}
	t := res.Task
	started := time.Now()

	if err := ctx.Err(); err != nil {
		r.finish(t, started, "", 0, fmt.Errorf("context cancelled before execution: %w", err))
		return true
	}

	runCtx := ctx
	if r.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.TaskTimeout)
		defer cancel()
	}

	key := "default"
	if k, ok := r.handler.(keyed); ok {
		if v := k.Key(t); v != "" {
			key = v
		}
	}
	rep := &reporter{runner: r, id: id}

	output, attempts, err := runWithRetry(runCtx, func(ctx context.Context) (string, error) {
		rep.Step("attempt", lifecycle.StepStarted, "")
		out, err := r.handler.Run(ctx, t, rep)
		if err != nil {
			rep.Step("attempt", lifecycle.StepFailed, err.Error())
			return out, err
		}
		rep.Step("attempt", lifecycle.StepCompleted, "")
		return out, nil
	}, r.config.Breakers.Get(key), r.config.Retry)

	r.finish(t, started, output, attempts, err)
	return true
}

func (r *Runner) finish(t *task.Task, started time.Time, output string, attempts int, err error) {
	notes := ""
	if err != nil {
		notes = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			notes = "timed out: " + notes
		}
		r.config.Logger.Printf("ERROR: task %s failed after %d attempt(s): %v", t.ID, attempts, err)
	}

	res := r.ctrl.FinishExecution(t.ID, err == nil, notes, output, r.config.User)
	if !res.Ok() {
		r.config.Logger.Printf("ERROR: failed to record result of task %s: %s", t.ID, res.Reason)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, TaskResult{
		TaskID:   t.ID,
		Success:  err == nil,
		Output:   output,
		Attempts: attempts,
		Duration: time.Since(started),
		Error:    err,
	})
}

// reporter forwards handler progress to the execution log and the bus.
type reporter struct {
	runner *Runner
	id     string
}

func (p *reporter) Step(name, status, detail string) {
	p.runner.ctrl.LogStep(p.id, name, status, detail)
}

func (p *reporter) Output(line string) {
	p.runner.config.Bus.Publish(events.TopicTask, events.TaskOutputEvent{
		ID:        p.id,
		Line:      line,
		Timestamp: time.Now(),
	})
}
