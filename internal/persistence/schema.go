package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
//
// Dependencies keep their list position and carry no foreign key on
// depends_on_id: dangling and duplicate dependencies are data the validator
// reports, so the database must be able to hold them.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		complexity_score REAL,
		details TEXT NOT NULL DEFAULT '{}',
		execution_context TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		task_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (task_id, position),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_depends_on ON task_dependencies(depends_on_id);

	CREATE TABLE IF NOT EXISTS task_subtasks (
		task_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		subtask_id TEXT NOT NULL,
		PRIMARY KEY (task_id, position),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_history (
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		user TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (task_id, seq),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
