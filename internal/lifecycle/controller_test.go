package lifecycle

import (
	"bytes"
	"errors"
	"log"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/aristath/tascade/internal/events"
	"github.com/aristath/tascade/internal/store"
	"github.com/aristath/tascade/internal/task"
)

// clock is a manually advanced time source.
type clock struct {
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func pending(id string, deps ...string) *task.Task {
	return &task.Task{ID: id, Title: "Task " + id, Status: task.StatusPending, Priority: task.PriorityMedium, Dependencies: deps}
}

type fixture struct {
	store *store.TaskStore
	ctrl  *Controller
	clock *clock
	logs  *bytes.Buffer
	bus   *events.Bus
}

func setup(t *testing.T, cfg ControllerConfig, tasks ...*task.Task) *fixture {
	t.Helper()
	s := store.New()
	for _, tk := range tasks {
		if err := s.Add(tk); err != nil {
			t.Fatalf("Add(%s): %v", tk.ID, err)
		}
	}

	f := &fixture{store: s, clock: newClock(), logs: &bytes.Buffer{}, bus: events.NewBus()}
	t.Cleanup(f.bus.Close)

	cfg.Now = f.clock.Now
	cfg.Logger = log.New(f.logs, "", 0)
	cfg.Bus = f.bus
	f.ctrl = NewController(s, cfg)
	return f
}

func (f *fixture) get(t *testing.T, id string) *task.Task {
	t.Helper()
	tk, ok := f.store.Get(id)
	if !ok {
		t.Fatalf("task %s missing from store", id)
	}
	return tk
}

func lastEntry(t *testing.T, tk *task.Task) task.HistoryEntry {
	t.Helper()
	e, ok := tk.LastHistory()
	if !ok {
		t.Fatalf("task %s has no history", tk.ID)
	}
	return e
}

func TestLifecycleRoundTrip(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"))

	res := f.ctrl.Start("A", "alice")
	if !res.Ok() {
		t.Fatalf("Start() outcome = %s (%s)", res.Outcome, res.Reason)
	}
	got := f.get(t, "A")
	if got.Status != task.StatusInProgress {
		t.Errorf("status = %s, want in_progress", got.Status)
	}
	if got.Details.StartedAt == nil || !got.Details.StartedAt.Equal(f.clock.now) {
		t.Errorf("started_at = %v, want %v", got.Details.StartedAt, f.clock.now)
	}
	if e := lastEntry(t, got); e.User != "alice" || !strings.HasPrefix(e.Description, "started: ") {
		t.Errorf("history entry = %+v", e)
	}

	f.clock.Advance(90 * time.Second)
	res = f.ctrl.Complete("A", "shipped", "")
	if !res.Ok() {
		t.Fatalf("Complete() outcome = %s", res.Outcome)
	}
	got = f.get(t, "A")
	if got.Status != task.StatusDone {
		t.Errorf("status = %s, want done", got.Status)
	}
	want := got.Details.CompletedAt.Sub(*got.Details.StartedAt).Seconds()
	if got.Details.DurationSeconds == nil || math.Abs(*got.Details.DurationSeconds-want) > 1e-9 || want != 90 {
		t.Errorf("duration = %v, want %v", got.Details.DurationSeconds, want)
	}
	e := lastEntry(t, got)
	if e.Description != "completed: shipped" || e.User != task.DefaultUser {
		t.Errorf("history entry = %+v", e)
	}
	if len(got.History) != 2 {
		t.Errorf("history length = %d, want 2", len(got.History))
	}
}

func TestStartWithUnmetDependencies(t *testing.T) {
	t.Run("permissive warns and proceeds", func(t *testing.T) {
		f := setup(t, ControllerConfig{}, pending("A"), pending("B", "A", "ghost"))

		res := f.ctrl.Start("B", "")
		if !res.Ok() {
			t.Fatalf("Start() outcome = %s", res.Outcome)
		}
		if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "A, ghost") {
			t.Errorf("warnings = %v", res.Warnings)
		}
		if !strings.Contains(f.logs.String(), "WARNING:") {
			t.Errorf("no warning logged: %q", f.logs.String())
		}
		if f.get(t, "B").Status != task.StatusInProgress {
			t.Error("task not started")
		}
	})

	t.Run("strict rejects", func(t *testing.T) {
		f := setup(t, ControllerConfig{StrictStart: true}, pending("A"), pending("B", "A"))

		res := f.ctrl.Start("B", "")
		if res.Outcome != InvalidState {
			t.Fatalf("Start() outcome = %s, want invalid_state", res.Outcome)
		}
		if !errors.Is(res.Err(), ErrInvalidTransition) {
			t.Errorf("Err() = %v", res.Err())
		}
		got := f.get(t, "B")
		if got.Status != task.StatusPending || len(got.History) != 0 {
			t.Errorf("rejected start changed task: %s, %d history entries", got.Status, len(got.History))
		}
	})
}

func TestStartKeepsFirstStartTime(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"))
	f.ctrl.Start("A", "")
	first := *f.get(t, "A").Details.StartedAt

	f.clock.Advance(time.Minute)
	f.ctrl.Start("A", "")
	if got := f.get(t, "A").Details.StartedAt; !got.Equal(first) {
		t.Errorf("started_at moved from %v to %v", first, got)
	}
}

func TestCompleteRecordsUnblockedDependents(t *testing.T) {
	a, b := pending("A"), pending("B")
	b.Status = task.StatusDone
	f := setup(t, ControllerConfig{}, a, b, pending("C", "A", "B"), pending("D", "A", "E"), pending("E"), pending("F", "A", "ghost"))

	res := f.ctrl.Complete("A", "", "bob")
	if !res.Ok() {
		t.Fatalf("Complete() outcome = %s", res.Outcome)
	}

	got := f.get(t, "A")
	if len(got.History) != 2 {
		t.Fatalf("history = %+v, want transition and unblocked note", got.History)
	}
	if got.History[0].Description != "completed: task marked as done" || got.History[0].User != "bob" {
		t.Errorf("transition entry = %+v", got.History[0])
	}
	note := got.History[1]
	if note.Description != "unblocked dependents: C, F" || note.User != task.DefaultUser {
		t.Errorf("unblocked note = %+v", note)
	}
	if got.Details.DurationSeconds != nil {
		t.Error("duration set for a task that never started")
	}
}

func TestPause(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"))

	res := f.ctrl.Pause("A", "lunch", "")
	if res.Outcome != InvalidState {
		t.Fatalf("Pause() on pending outcome = %s, want invalid_state", res.Outcome)
	}
	if res.Task == nil || res.Task.Status != task.StatusPending {
		t.Errorf("rejected pause should return the unchanged task, got %+v", res.Task)
	}
	if !strings.Contains(f.logs.String(), "WARNING: cannot pause task A") {
		t.Errorf("log = %q", f.logs.String())
	}

	f.ctrl.Start("A", "")
	f.clock.Advance(30 * time.Second)
	res = f.ctrl.Pause("A", "lunch", "")
	if !res.Ok() {
		t.Fatalf("Pause() outcome = %s", res.Outcome)
	}

	f.clock.Advance(time.Hour)
	f.ctrl.Start("A", "")
	f.clock.Advance(15 * time.Second)
	f.ctrl.Pause("A", "", "")

	got := f.get(t, "A")
	if got.Status != task.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.Details.StartedAt != nil {
		t.Error("started_at not cleared")
	}
	if got.Details.TimeSpentSeconds != 45 {
		t.Errorf("time_spent_seconds = %v, want 45", got.Details.TimeSpentSeconds)
	}
	if e := lastEntry(t, got); e.Description != "paused: task paused" {
		t.Errorf("history entry = %+v", e)
	}
}

func TestBlockUnblock(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"))

	if res := f.ctrl.Unblock("A", "nothing to do", ""); res.Outcome != InvalidState {
		t.Fatalf("Unblock() on pending outcome = %s", res.Outcome)
	}

	f.ctrl.Block("A", "waiting on credentials", "carol")
	f.clock.Advance(time.Minute)
	f.ctrl.Unblock("A", "keys issued", "dave")
	f.ctrl.Block("A", "flaky CI", "")

	got := f.get(t, "A")
	if got.Status != task.StatusBlocked {
		t.Fatalf("status = %s, want blocked", got.Status)
	}
	if len(got.Details.Blockers) != 2 {
		t.Fatalf("blockers = %+v", got.Details.Blockers)
	}
	first := got.Details.Blockers[0]
	if first.ResolvedAt == nil || first.Resolution != "keys issued" {
		t.Errorf("first blocker not resolved: %+v", first)
	}
	if got.Details.Blockers[1].ResolvedAt != nil {
		t.Error("second blocker resolved too early")
	}

	descs := make([]string, len(got.History))
	for i, e := range got.History {
		descs[i] = e.Description
	}
	want := "blocked: waiting on credentials|unblocked: keys issued|blocked: flaky CI"
	if strings.Join(descs, "|") != want {
		t.Errorf("history = %v", descs)
	}
}

func TestFail(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"))
	f.ctrl.Start("A", "")
	f.clock.Advance(10 * time.Second)

	res := f.ctrl.Fail("A", "disk full", "")
	if !res.Ok() || res.Task.Status != task.StatusFailed {
		t.Fatalf("Fail() = %s / %v", res.Outcome, res.Task)
	}
	if res.Task.Details.TimeSpentSeconds != 10 {
		t.Errorf("time spent = %v, want 10", res.Task.Details.TimeSpentSeconds)
	}
}

func TestNotFound(t *testing.T) {
	f := setup(t, ControllerConfig{})

	ops := map[string]func() Result{
		"start":    func() Result { return f.ctrl.Start("nope", "") },
		"complete": func() Result { return f.ctrl.Complete("nope", "", "") },
		"pause":    func() Result { return f.ctrl.Pause("nope", "", "") },
		"block":    func() Result { return f.ctrl.Block("nope", "x", "") },
		"unblock":  func() Result { return f.ctrl.Unblock("nope", "x", "") },
		"fail":     func() Result { return f.ctrl.Fail("nope", "", "") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			res := op()
			if res.Outcome != NotFound || res.Task != nil {
				t.Errorf("outcome = %s task = %v, want not_found nil", res.Outcome, res.Task)
			}
			if !errors.Is(res.Err(), ErrTaskNotFound) {
				t.Errorf("Err() = %v", res.Err())
			}
		})
	}
}

func TestEveryTransitionAppendsOneEntry(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"))

	steps := []func() Result{
		func() Result { return f.ctrl.Start("A", "") },
		func() Result { return f.ctrl.Pause("A", "", "") },
		func() Result { return f.ctrl.Block("A", "x", "") },
		func() Result { return f.ctrl.Unblock("A", "y", "") },
		func() Result { return f.ctrl.Start("A", "") },
		func() Result { return f.ctrl.Fail("A", "", "") },
		func() Result { return f.ctrl.Complete("A", "", "") },
	}
	for i, step := range steps {
		before := len(f.get(t, "A").History)
		if res := step(); !res.Ok() {
			t.Fatalf("step %d: outcome %s (%s)", i, res.Outcome, res.Reason)
		}
		if after := len(f.get(t, "A").History); after != before+1 {
			t.Errorf("step %d appended %d entries", i, after-before)
		}
	}
}

func TestEventsPublished(t *testing.T) {
	f := setup(t, ControllerConfig{}, pending("A"), pending("B", "A"))
	taskCh := f.bus.Subscribe(events.TopicTask, 16)
	graphCh := f.bus.Subscribe(events.TopicGraph, 16)

	f.ctrl.Start("A", "")
	f.ctrl.Complete("A", "", "")
	f.ctrl.Pause("B", "", "") // rejected, no event

	var types []string
	for len(taskCh) > 0 {
		types = append(types, (<-taskCh).EventType())
	}
	if strings.Join(types, ",") != events.EventTypeTaskStarted+","+events.EventTypeTaskCompleted {
		t.Errorf("task events = %v", types)
	}

	var last events.ProgressEvent
	for len(graphCh) > 0 {
		last = (<-graphCh).(events.ProgressEvent)
	}
	if last.Total != 2 || last.Done != 1 || last.Pending != 1 {
		t.Errorf("last progress = %+v", last)
	}
}
