package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reservas/internal/models"
)

const publishTaskColumns = `id, space_id, event_type, payload, status, retry_count, last_error,
	created_at, processed_at, next_retry_at`

func (db *DB) CreatePublishTask(ctx context.Context, task *models.PublishTask) error {
	query := `INSERT INTO publish_queue (space_id, event_type, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Truncate(time.Millisecond)
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	result, err := db.ExecContext(ctx, query,
		task.SpaceID,
		task.EventType,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		formatTime(now),
		nullableTime(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create publish task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

// GetPendingPublishTasks returns due tasks oldest first.
func (db *DB) GetPendingPublishTasks(ctx context.Context, limit int) ([]models.PublishTask, error) {
	query := `SELECT ` + publishTaskColumns + `
              FROM publish_queue
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	return db.queryPublishTasks(ctx, query,
		models.TaskStatusPending, models.TaskStatusRetry, formatTime(time.Now()), limit)
}

func (db *DB) GetFailedPublishTasks(ctx context.Context) ([]models.PublishTask, error) {
	query := `SELECT ` + publishTaskColumns + ` FROM publish_queue WHERE status = ? ORDER BY created_at DESC`
	return db.queryPublishTasks(ctx, query, models.TaskStatusFailed)
}

func (db *DB) UpdatePublishTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := formatTime(time.Now())

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE publish_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, errMsg, nullableTime(nextRetryAt), id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE publish_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, errMsg, nullableTime(nextRetryAt), now, id}
	default:
		query = `UPDATE publish_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, errMsg, nullableTime(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update publish task status: %w", err)
	}
	return nil
}

func (db *DB) queryPublishTasks(ctx context.Context, query string, args ...any) ([]models.PublishTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get publish tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.PublishTask
	for rows.Next() {
		var (
			t                      models.PublishTask
			createdAt              string
			processedAt, nextRetry sql.NullString
		)
		err := rows.Scan(
			&t.ID, &t.SpaceID, &t.EventType, &t.Payload, &t.Status, &t.RetryCount, &t.LastError,
			&createdAt, &processedAt, &nextRetry,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish task: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if t.ProcessedAt, err = parseNullableTime(processedAt); err != nil {
			return nil, err
		}
		if t.NextRetryAt, err = parseNullableTime(nextRetry); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
