package database

import (
	"context"
	"fmt"
	"time"

	"selefli/internal/models"

	"github.com/google/uuid"
)

const pushTaskColumns = `id, notification_id, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreatePushTask(ctx context.Context, task *models.PushTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	ts := now()
	query := db.Rebind(`INSERT INTO push_queue (id, notification_id, status, retry_count, last_error, created_at, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := db.ExecContext(ctx, query, task.ID, task.NotificationID, task.Status, task.RetryCount,
		task.LastError, ts, task.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to create push task: %w", err)
	}
	task.CreatedAt = ts
	return nil
}

func (db *DB) GetPushTask(ctx context.Context, id string) (*models.PushTask, error) {
	var task models.PushTask
	if err := db.GetContext(ctx, &task, db.Rebind(`SELECT `+pushTaskColumns+` FROM push_queue WHERE id = ?`), id); err != nil {
		return nil, normalize(err)
	}
	return &task, nil
}

// GetPendingPushTasks returns tasks that are due, oldest first.
func (db *DB) GetPendingPushTasks(ctx context.Context, limit int) ([]models.PushTask, error) {
	tasks := []models.PushTask{}
	query := db.Rebind(`SELECT ` + pushTaskColumns + ` FROM push_queue
		WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at ASC LIMIT ?`)
	err := db.SelectContext(ctx, &tasks, query, models.TaskStatusPending, models.TaskStatusRetry, now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending push tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) GetFailedPushTasks(ctx context.Context) ([]models.PushTask, error) {
	tasks := []models.PushTask{}
	query := db.Rebind(`SELECT ` + pushTaskColumns + ` FROM push_queue WHERE status = ? ORDER BY created_at DESC`)
	if err := db.SelectContext(ctx, &tasks, query, models.TaskStatusFailed); err != nil {
		return nil, fmt.Errorf("failed to get failed push tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) UpdatePushTaskStatus(ctx context.Context, id, status, errMsg string, nextRetryAt *time.Time) error {
	var (
		query string
		args  []any
	)
	ts := now()
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE push_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, nullIfEmpty(errMsg), nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE push_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, nullIfEmpty(errMsg), nextRetryAt, ts, id}
	default:
		query = `UPDATE push_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, nullIfEmpty(errMsg), nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update push task status: %w", err)
	}
	return nil
}
