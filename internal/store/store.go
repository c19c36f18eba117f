// Package store holds the authoritative in-memory map of tasks.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/tascade/internal/task"
)

var (
	ErrNotFound  = errors.New("task not found")
	ErrDuplicate = errors.New("task already exists")
)

// TaskStore owns the task arena. Every read hands out deep copies and every
// write goes through the store lock, so callers never share memory with it.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task // All tasks indexed by ID
}

// New creates an empty store.
func New() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*task.Task),
	}
}

// NewFrom creates a store seeded with copies of the given tasks.
func NewFrom(tasks map[string]*task.Task) *TaskStore {
	s := New()
	s.Replace(tasks)
	return s
}

// Add inserts a task. Returns ErrDuplicate if the ID is taken.
func (s *TaskStore) Add(t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("task must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, t.ID)
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

// Put inserts or replaces a task.
func (s *TaskStore) Put(t *task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
}

// Get returns a copy of the task with the given ID.
func (s *TaskStore) Get(id string) (*task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	return t.Clone(), true
}

// Delete removes a task. Dependencies that point at it are left alone; the
// dependency validator reports them as missing.
func (s *TaskStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return false
	}
	delete(s.tasks, id)
	return true
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// IDs returns every task ID in sorted order.
func (s *TaskStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Counts tallies tasks by status.
func (s *TaskStore) Counts() map[task.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[task.Status]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts
}

// List returns copies of all tasks ordered by creation time, then ID.
func (s *TaskStore) List() []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	SortByCreation(out)
	return out
}

// Snapshot returns a deep copy of the whole arena taken under a single read
// lock, so the result never mixes states from concurrent writers.
func (s *TaskStore) Snapshot() map[string]*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return task.CloneAll(s.tasks)
}

// Update applies fn to the stored task under the write lock. If fn returns an
// error the task is left untouched.
func (s *TaskStore) Update(id string, fn func(t *task.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	working := t.Clone()
	if err := fn(working); err != nil {
		return err
	}
	s.tasks[id] = working
	return nil
}

// Mutate runs fn over the live arena under the write lock. It is meant for
// operations that read or rewrite several tasks at once. fn must not retain
// the map or any task after it returns.
func (s *TaskStore) Mutate(fn func(tasks map[string]*task.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := task.CloneAll(s.tasks)
	if err := fn(working); err != nil {
		return err
	}
	s.tasks = working
	return nil
}

// Replace swaps the arena for copies of tasks.
func (s *TaskStore) Replace(tasks map[string]*task.Task) {
	cp := task.CloneAll(tasks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = cp
}

// SortByCreation orders tasks by CreatedAt, breaking ties by ID.
func SortByCreation(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
