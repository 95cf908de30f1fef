package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hikari-danmu/server/pkg/storage"
)

// CreateTask enforces the "at most one active task per unique_key"
// invariant: if UniqueKey is set and an active (pending/running/paused)
// task already owns it, this returns storage.ErrConflict instead of
// inserting a second row.
func (s *SQLite) CreateTask(ctx context.Context, t storage.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if t.UniqueKey != "" {
		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM task
			WHERE unique_key = ? AND status IN ('pending', 'running', 'paused')`,
			t.UniqueKey,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check unique key conflict: %w", err)
		}
		if count > 0 {
			return storage.ErrConflict
		}
	}

	params := t.TaskParameters
	if params == nil {
		params, _ = json.Marshal(map[string]any{})
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task (task_id, title, status, progress, description, queue_type, unique_key, task_type, task_parameters)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.Title, t.Status, t.Progress, t.Description, t.QueueType, nullableString(t.UniqueKey), t.TaskType, string(params),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) GetTask(ctx context.Context, taskID string) (storage.Task, bool, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE task_id = ?`, taskID))
	if err == sql.ErrNoRows {
		return storage.Task{}, false, nil
	}
	if err != nil {
		return storage.Task{}, false, fmt.Errorf("get task: %w", err)
	}
	return t, true, nil
}

func (s *SQLite) UpdateTask(ctx context.Context, t storage.Task) error {
	params := t.TaskParameters
	if params == nil {
		params, _ = json.Marshal(map[string]any{})
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE task SET title = ?, status = ?, progress = ?, description = ?, queue_type = ?,
			unique_key = ?, task_type = ?, task_parameters = ?, updated_at = CURRENT_TIMESTAMP, finished_at = ?
		WHERE task_id = ?`,
		t.Title, t.Status, t.Progress, t.Description, t.QueueType, nullableString(t.UniqueKey),
		t.TaskType, string(params), t.FinishedAt, t.TaskID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.TaskID, err)
	}
	return nil
}

func (s *SQLite) FindActiveTaskByUniqueKey(ctx context.Context, uniqueKey string) (storage.Task, bool, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		taskSelect+` WHERE unique_key = ? AND status IN ('pending', 'running', 'paused')`, uniqueKey))
	if err == sql.ErrNoRows {
		return storage.Task{}, false, nil
	}
	if err != nil {
		return storage.Task{}, false, fmt.Errorf("find active task: %w", err)
	}
	return t, true, nil
}

func (s *SQLite) ListTasksByStatus(ctx context.Context, status storage.TaskStatus) ([]storage.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListRecoverableTasks returns pending tasks whose task_type is one of the
// recoverable kinds, for startup crash recovery.
func (s *SQLite) ListRecoverableTasks(ctx context.Context, recoverableTypes []string) ([]storage.Task, error) {
	if len(recoverableTypes) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(recoverableTypes))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(recoverableTypes)+1)
	args = append(args, storage.TaskStatusPending)
	for _, t := range recoverableTypes {
		args = append(args, t)
	}

	rows, err := s.db.QueryContext(ctx,
		taskSelect+fmt.Sprintf(` WHERE status = ? AND task_type IN (%s) ORDER BY created_at`, placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list recoverable tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskSelect = `
	SELECT task_id, title, status, progress, description, queue_type, unique_key, task_type, task_parameters, created_at, updated_at, finished_at
	FROM task`

func scanTask(row *sql.Row) (storage.Task, error) {
	var t storage.Task
	var uniqueKey sql.NullString
	var params string
	var finishedAt sql.NullTime
	err := row.Scan(&t.TaskID, &t.Title, &t.Status, &t.Progress, &t.Description, &t.QueueType,
		&uniqueKey, &t.TaskType, &params, &t.CreatedAt, &t.UpdatedAt, &finishedAt)
	if err != nil {
		return storage.Task{}, err
	}
	t.UniqueKey = uniqueKey.String
	t.TaskParameters = json.RawMessage(params)
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]storage.Task, error) {
	var out []storage.Task
	for rows.Next() {
		var t storage.Task
		var uniqueKey sql.NullString
		var params string
		var finishedAt sql.NullTime
		if err := rows.Scan(&t.TaskID, &t.Title, &t.Status, &t.Progress, &t.Description, &t.QueueType,
			&uniqueKey, &t.TaskType, &params, &t.CreatedAt, &t.UpdatedAt, &finishedAt); err != nil {
			return nil, err
		}
		t.UniqueKey = uniqueKey.String
		t.TaskParameters = json.RawMessage(params)
		if finishedAt.Valid {
			t.FinishedAt = &finishedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
