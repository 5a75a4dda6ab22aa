package database

import (
	"context"
	"fmt"
	"time"

	"shinebin/internal/models"
)

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

const taskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error {
	if task.Status == "" {
		task.Status = TaskStatusPending
	}
	query := `INSERT INTO notification_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	now := time.Now().UTC()
	err := db.QueryRowContext(ctx, query,
		task.TaskType,
		task.BookingID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		utcPtr(task.NextRetryAt),
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification task: %w", err)
	}
	task.CreatedAt = now
	return nil
}

// GetPendingNotificationTasks returns tasks that are due, oldest first.
func (db *DB) GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	query := `SELECT ` + taskColumns + `
              FROM notification_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= $1)
              ORDER BY created_at ASC LIMIT $2`
	return db.queryTasks(ctx, query, time.Now().UTC(), limit)
}

func (db *DB) UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now().UTC()

	nextRetryAt = utcPtr(nextRetryAt)

	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	switch status {
	case TaskStatusRetry:
		query = `UPDATE notification_queue SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
		args = []any{status, lastError, nextRetryAt, id}
	case TaskStatusCompleted, TaskStatusFailed:
		query = `UPDATE notification_queue SET status = $1, last_error = $2, next_retry_at = $3, processed_at = $4 WHERE id = $5`
		args = []any{status, lastError, nextRetryAt, now, id}
	default:
		query = `UPDATE notification_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`
		args = []any{status, lastError, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update notification task status: %w", err)
	}
	return nil
}

// GetFailedNotificationTasks returns the newest alerts that exhausted their retries.
func (db *DB) GetFailedNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_queue WHERE status = 'failed' ORDER BY created_at DESC, id DESC LIMIT $1`
	return db.queryTasks(ctx, query, limit)
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]models.NotificationTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		var t models.NotificationTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
