package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/tascade/internal/task"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sample builds a pending task created minutes after base.
func sample(id string, minutes int, deps ...string) *task.Task {
	at := base.Add(time.Duration(minutes) * time.Minute)
	t := task.New("task "+id, at)
	t.ID = id
	if deps == nil {
		deps = []string{}
	}
	t.Dependencies = deps
	return t
}

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) { fn(t, testStore(t)) })
	t.Run("json", func(t *testing.T) {
		fn(t, NewFileStore(filepath.Join(t.TempDir(), "tasks.json")))
	})
}

func TestSaveAndGetTask(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		// Missing and duplicate dependencies are stored as given.
		tk := sample("task-1", 0, "dep-1", "ghost", "dep-1")
		tk.Description = "write the thing"
		tk.Priority = task.PriorityHigh
		tk.ComplexityScore = task.Float(8)
		tk.Subtasks = []string{"sub-2", "sub-1"}
		tk.Status = task.StatusBlocked
		tk.Details.Blockers = []task.Blocker{{Timestamp: base, Description: "waiting on review"}}
		tk.Details.TimeSpentSeconds = 42
		start := base.Add(time.Minute)
		tk.ExecutionContext = &task.ExecutionContext{
			StartTime: &start,
			Status:    "in_progress",
			Logs:      []task.ExecutionLog{{Timestamp: start, Level: "info", Message: "Task execution started"}},
		}
		tk.AddHistory(base.Add(2*time.Minute), "alice", "blocked: waiting on review")

		if err := st.SaveTask(ctx, tk); err != nil {
			t.Fatalf("failed to save task: %v", err)
		}

		got, err := st.GetTask(ctx, "task-1")
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}

		if got.Title != tk.Title || got.Description != tk.Description {
			t.Errorf("text fields = %q / %q", got.Title, got.Description)
		}
		if got.Status != task.StatusBlocked || got.Priority != task.PriorityHigh {
			t.Errorf("status/priority = %s/%s", got.Status, got.Priority)
		}
		if got.ComplexityScore == nil || *got.ComplexityScore != 8 {
			t.Errorf("complexity = %v, want 8", got.ComplexityScore)
		}
		assertStrings(t, "dependencies", got.Dependencies, []string{"dep-1", "ghost", "dep-1"})
		assertStrings(t, "subtasks", got.Subtasks, []string{"sub-2", "sub-1"})

		if len(got.History) != 2 || got.History[1].User != "alice" || !got.History[1].Timestamp.Equal(base.Add(2*time.Minute)) {
			t.Errorf("history = %+v", got.History)
		}
		if len(got.Details.Blockers) != 1 || got.Details.TimeSpentSeconds != 42 {
			t.Errorf("details = %+v", got.Details)
		}
		if got.ExecutionContext == nil || got.ExecutionContext.Status != "in_progress" || len(got.ExecutionContext.Logs) != 1 {
			t.Errorf("execution context = %+v", got.ExecutionContext)
		}
		if !got.CreatedAt.Equal(tk.CreatedAt) || !got.UpdatedAt.Equal(tk.UpdatedAt) {
			t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
		}
	})
}

func TestGetTaskNotFound(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		_, err := st.GetTask(context.Background(), "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetTask() error = %v, want ErrNotFound", err)
		}
		if err := st.DeleteTask(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteTask() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSaveTaskUpdates(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		tk := sample("A", 0, "B")
		if err := st.SaveTask(ctx, tk); err != nil {
			t.Fatalf("SaveTask() error = %v", err)
		}

		tk.Status = task.StatusInProgress
		tk.Dependencies = []string{}
		tk.AddHistory(base.Add(time.Hour), "", "started: task marked as in progress")
		if err := st.SaveTask(ctx, tk); err != nil {
			t.Fatalf("second SaveTask() error = %v", err)
		}

		got, err := st.GetTask(ctx, "A")
		if err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
		if got.Status != task.StatusInProgress {
			t.Errorf("status = %s, want in_progress", got.Status)
		}
		if len(got.Dependencies) != 0 {
			t.Errorf("dependencies = %v, want none", got.Dependencies)
		}
		if len(got.History) != 2 {
			t.Errorf("history has %d entries, want 2", len(got.History))
		}
	})
}

func TestSQLiteHistoryIsAppendOnly(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	tk := sample("A", 0)
	tk.AddHistory(base.Add(time.Minute), "", "started: task marked as in progress")
	if err := st.SaveTask(ctx, tk); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	tk.History = tk.History[:1]
	if err := st.SaveTask(ctx, tk); !errors.Is(err, ErrHistoryRewrite) {
		t.Fatalf("SaveTask() with truncated history error = %v, want ErrHistoryRewrite", err)
	}

	got, err := st.GetTask(ctx, "A")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if len(got.History) != 2 {
		t.Errorf("history has %d entries after rejected save, want 2", len(got.History))
	}
}

func TestSaveAllReplacesSet(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		for _, tk := range []*task.Task{sample("A", 0), sample("B", 1)} {
			if err := st.SaveTask(ctx, tk); err != nil {
				t.Fatalf("SaveTask(%s) error = %v", tk.ID, err)
			}
		}

		next := map[string]*task.Task{
			"C": sample("C", 2, "B"),
			"B": sample("B", 1),
		}
		if err := st.SaveAll(ctx, next); err != nil {
			t.Fatalf("SaveAll() error = %v", err)
		}

		list, err := st.ListTasks(ctx)
		if err != nil {
			t.Fatalf("ListTasks() error = %v", err)
		}
		var ids []string
		for _, tk := range list {
			ids = append(ids, tk.ID)
		}
		assertStrings(t, "ids", ids, []string{"B", "C"})

		all, err := st.LoadAll(ctx)
		if err != nil {
			t.Fatalf("LoadAll() error = %v", err)
		}
		assertStrings(t, "C dependencies", all["C"].Dependencies, []string{"B"})
	})
}

func TestDeleteTask(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		if err := st.SaveTask(ctx, sample("A", 0)); err != nil {
			t.Fatalf("SaveTask() error = %v", err)
		}
		if err := st.DeleteTask(ctx, "A"); err != nil {
			t.Fatalf("DeleteTask() error = %v", err)
		}
		if _, err := st.GetTask(ctx, "A"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetTask() after delete error = %v, want ErrNotFound", err)
		}

		// A re-created task starts a fresh history.
		if err := st.SaveTask(ctx, sample("A", 5)); err != nil {
			t.Fatalf("SaveTask() after delete error = %v", err)
		}
	})
}

func TestListTasksCreationOrder(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		// Sub-second offsets exercise timestamp ordering.
		late := sample("late", 0)
		late.CreatedAt = base.Add(1500 * time.Millisecond)
		early := sample("early", 0)
		early.CreatedAt = base.Add(time.Second)
		for _, tk := range []*task.Task{late, early, sample("first", 0)} {
			if err := st.SaveTask(ctx, tk); err != nil {
				t.Fatalf("SaveTask(%s) error = %v", tk.ID, err)
			}
		}

		list, err := st.ListTasks(ctx)
		if err != nil {
			t.Fatalf("ListTasks() error = %v", err)
		}
		var ids []string
		for _, tk := range list {
			ids = append(ids, tk.ID)
		}
		assertStrings(t, "order", ids, []string{"first", "early", "late"})
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(ctx, "sqlite", filepath.Join(dir, "db", "tasks.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	st.Close()

	if _, err := Open(ctx, "json", filepath.Join(dir, "tasks.json")); err != nil {
		t.Errorf("Open(json) error = %v", err)
	}
	if _, err := Open(ctx, "csv", "x"); err == nil {
		t.Error("Open(csv) succeeded, want error")
	}
}

func assertStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %q, want %q", what, i, got[i], want[i])
		}
	}
}
