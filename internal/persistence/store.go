// Package persistence saves and loads task sets. Two backends share the
// Store interface: a JSON file and a SQLite database.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/tascade/internal/store"
	"github.com/aristath/tascade/internal/task"
)

// ErrNotFound is returned when a task ID is not present in the backend.
var ErrNotFound = errors.New("task not found")

// Store defines the persistence interface for tasks.
type Store interface {
	// Single task operations
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context) ([]*task.Task, error)

	// Whole set operations. SaveAll makes the backend hold exactly tasks.
	LoadAll(ctx context.Context) (map[string]*task.Task, error)
	SaveAll(ctx context.Context, tasks map[string]*task.Task) error

	// Lifecycle
	Close() error
}

// Open returns the backend named by kind ("json" or "sqlite") at path.
func Open(ctx context.Context, kind, path string) (Store, error) {
	switch kind {
	case "json":
		return NewFileStore(path), nil
	case "sqlite":
		return NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// LoadStore reads every task from st into a fresh TaskStore.
func LoadStore(ctx context.Context, st Store) (*store.TaskStore, error) {
	tasks, err := st.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewFrom(tasks), nil
}

// SaveStore writes a snapshot of ts to st.
func SaveStore(ctx context.Context, st Store, ts *store.TaskStore) error {
	return st.SaveAll(ctx, ts.Snapshot())
}

func notFound(taskID string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, taskID)
}
