package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aristath/tascade/internal/store"
	"github.com/aristath/tascade/internal/task"
)

// fileData is the on-disk shape: {"tasks": {"<id>": {...}}}.
type fileData struct {
	Tasks map[string]*task.Task `json:"tasks"`
}

// FileStore keeps the whole task set in one JSON file. Every write rewrites
// the file through a temporary sibling and a rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() (map[string]*task.Task, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*task.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if fd.Tasks == nil {
		fd.Tasks = map[string]*task.Task{}
	}
	for id, t := range fd.Tasks {
		if t == nil {
			return nil, fmt.Errorf("parse %s: task %q is null", s.path, id)
		}
		if t.ID == "" {
			t.ID = id
		}
		if t.ID != id {
			return nil, fmt.Errorf("parse %s: task stored under %q has id %q", s.path, id, t.ID)
		}
		normalize(t)
	}
	return fd.Tasks, nil
}

func (s *FileStore) write(tasks map[string]*task.Task) error {
	data, err := json.MarshalIndent(fileData{Tasks: tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// SaveTask inserts or replaces one task.
func (s *FileStore) SaveTask(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		return err
	}
	tasks[t.ID] = t.Clone()
	return s.write(tasks)
}

// GetTask returns one task.
func (s *FileStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		return nil, err
	}
	t, ok := tasks[taskID]
	if !ok {
		return nil, notFound(taskID)
	}
	return t, nil
}

// DeleteTask removes one task.
func (s *FileStore) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := tasks[taskID]; !ok {
		return notFound(taskID)
	}
	delete(tasks, taskID)
	return s.write(tasks)
}

// ListTasks returns every task in creation order.
func (s *FileStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		return nil, err
	}
	list := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		list = append(list, t)
	}
	store.SortByCreation(list)
	return list, nil
}

// LoadAll returns the whole task set. A missing file is an empty set.
func (s *FileStore) LoadAll(ctx context.Context) (map[string]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// SaveAll replaces the file contents with tasks.
func (s *FileStore) SaveAll(ctx context.Context, tasks map[string]*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tasks)
}

// Close is a no-op; the file is not held open.
func (s *FileStore) Close() error { return nil }

// normalize fills omitted fields so loaded tasks match freshly created ones.
func normalize(t *task.Task) {
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	if t.Subtasks == nil {
		t.Subtasks = []string{}
	}
	if t.History == nil {
		t.History = []task.HistoryEntry{}
	}
}
