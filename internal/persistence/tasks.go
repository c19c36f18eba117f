package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tascade/internal/task"
)

// ErrHistoryRewrite is returned when a save would drop stored history entries.
var ErrHistoryRewrite = errors.New("history is append-only")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveTask saves or updates a task with its dependencies, subtasks and new
// history entries.
func (s *SQLiteStore) SaveTask(ctx context.Context, t *task.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveTask(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveAll makes the database hold exactly tasks, in one transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, tasks map[string]*task.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks`)
	if err != nil {
		return fmt.Errorf("failed to query task ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan task id: %w", err)
		}
		if _, ok := tasks[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating task ids: %w", err)
	}

	for _, id := range stale {
		if err := deleteTask(ctx, tx, id); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		if err := saveTask(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func saveTask(ctx context.Context, tx *sql.Tx, t *task.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task has no id")
	}

	details, err := json.Marshal(t.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details of %s: %w", t.ID, err)
	}
	var execCtx sql.NullString
	if t.ExecutionContext != nil {
		data, err := json.Marshal(t.ExecutionContext)
		if err != nil {
			return fmt.Errorf("failed to encode execution context of %s: %w", t.ID, err)
		}
		execCtx = sql.NullString{String: string(data), Valid: true}
	}
	var complexity sql.NullFloat64
	if t.ComplexityScore != nil {
		complexity = sql.NullFloat64{Float64: *t.ComplexityScore, Valid: true}
	}

	// Upsert task (insert or update on conflict)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, complexity_score, details, execution_context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			priority = excluded.priority,
			complexity_score = excluded.complexity_score,
			details = excluded.details,
			execution_context = excluded.execution_context,
			updated_at = excluded.updated_at
	`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), complexity,
		string(details), execCtx, t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}

	if err := replaceList(ctx, tx, "task_dependencies", "depends_on_id", t.ID, t.Dependencies); err != nil {
		return err
	}
	if err := replaceList(ctx, tx, "task_subtasks", "subtask_id", t.ID, t.Subtasks); err != nil {
		return err
	}
	return appendHistory(ctx, tx, t)
}

// replaceList rewrites an ordered child list. table and column are constants
// supplied by this package.
func replaceList(ctx context.Context, tx *sql.Tx, table, column, taskID string, values []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete old %s of %s: %w", table, taskID, err)
	}
	for i, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (task_id, position, `+column+`) VALUES (?, ?, ?)`,
			taskID, i, v)
		if err != nil {
			return fmt.Errorf("failed to insert %s %s -> %s: %w", table, taskID, v, err)
		}
	}
	return nil
}

// appendHistory inserts the entries past those already stored.
func appendHistory(ctx context.Context, tx *sql.Tx, t *task.Task) error {
	var stored int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_history WHERE task_id = ?`, t.ID).Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to count history of %s: %w", t.ID, err)
	}
	if stored > len(t.History) {
		return fmt.Errorf("%w: task %s has %d stored entries, save carries %d", ErrHistoryRewrite, t.ID, stored, len(t.History))
	}

	for i := stored; i < len(t.History); i++ {
		e := t.History[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_history (task_id, seq, timestamp, user, description)
			VALUES (?, ?, ?, ?, ?)
		`, t.ID, i, e.Timestamp.UTC().Format(timeLayout), e.User, e.Description)
		if err != nil {
			return fmt.Errorf("failed to append history of %s: %w", t.ID, err)
		}
	}
	return nil
}

// DeleteTask removes a task and everything recorded for it.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(taskID)
	}
	if err != nil {
		return fmt.Errorf("failed to query task: %w", err)
	}

	if err := deleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteTask(ctx context.Context, tx *sql.Tx, taskID string) error {
	for _, table := range []string{"task_dependencies", "task_subtasks", "task_history"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", table, taskID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// GetTask retrieves a task by ID with its dependencies, subtasks and history.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	tasks, err := s.query(ctx, `WHERE id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, notFound(taskID)
	}
	return tasks[0], nil
}

// ListTasks returns all tasks in creation order.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	return s.query(ctx, ``)
}

// LoadAll returns every task keyed by ID.
func (s *SQLiteStore) LoadAll(ctx context.Context) (map[string]*task.Task, error) {
	list, err := s.query(ctx, ``)
	if err != nil {
		return nil, err
	}
	tasks := make(map[string]*task.Task, len(list))
	for _, t := range list {
		tasks[t.ID] = t
	}
	return tasks, nil
}

// query loads the tasks matching where, then fills their child rows with
// one query per child table.
func (s *SQLiteStore) query(ctx context.Context, where string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, status, priority, complexity_score, details, execution_context, created_at, updated_at
		FROM tasks `+where+`
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*task.Task
	byID := map[string]*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	if err := s.fillList(ctx, "task_dependencies", "depends_on_id", byID, func(t *task.Task, v string) {
		t.Dependencies = append(t.Dependencies, v)
	}); err != nil {
		return nil, err
	}
	if err := s.fillList(ctx, "task_subtasks", "subtask_id", byID, func(t *task.Task, v string) {
		t.Subtasks = append(t.Subtasks, v)
	}); err != nil {
		return nil, err
	}
	if err := s.fillHistory(ctx, byID); err != nil {
		return nil, err
	}
	return tasks, nil
}

func scanTask(rows *sql.Rows) (*task.Task, error) {
	var (
		t                    task.Task
		status, priority     string
		complexity           sql.NullFloat64
		details              string
		execCtx              sql.NullString
		createdAt, updatedAt string
	)
	if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &complexity,
		&details, &execCtx, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	var err error
	if t.Status, err = task.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	if t.Priority, err = task.ParsePriority(priority); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	if complexity.Valid {
		t.ComplexityScore = task.Float(complexity.Float64)
	}
	if err := json.Unmarshal([]byte(details), &t.Details); err != nil {
		return nil, fmt.Errorf("failed to decode details of %s: %w", t.ID, err)
	}
	if execCtx.Valid {
		t.ExecutionContext = &task.ExecutionContext{}
		if err := json.Unmarshal([]byte(execCtx.String), t.ExecutionContext); err != nil {
			return nil, fmt.Errorf("failed to decode execution context of %s: %w", t.ID, err)
		}
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}

	t.Dependencies = []string{}
	t.Subtasks = []string{}
	t.History = []task.HistoryEntry{}
	return &t, nil
}

func (s *SQLiteStore) fillList(ctx context.Context, table, column string, byID map[string]*task.Task, add func(*task.Task, string)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, `+column+` FROM `+table+` ORDER BY task_id, position`)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, value string
		if err := rows.Scan(&taskID, &value); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if t, ok := byID[taskID]; ok {
			add(t, value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) fillHistory(ctx context.Context, byID map[string]*task.Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, timestamp, user, description
		FROM task_history
		ORDER BY task_id, seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, ts string
		var e task.HistoryEntry
		if err := rows.Scan(&taskID, &ts, &e.User, &e.Description); err != nil {
			return fmt.Errorf("failed to scan history: %w", err)
		}
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return fmt.Errorf("history of %s: %w", taskID, err)
		}
		if t, ok := byID[taskID]; ok {
			t.History = append(t.History, e)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating history: %w", err)
	}
	return nil
}
