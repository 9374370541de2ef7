package database

import (
	"context"
	"errors"
	"fmt"

	"selefli/internal/models"

	"github.com/google/uuid"
)

const notificationColumns = `id, recipient_id, notification_type, title, body, payload, is_read, read_at,
	push_sent, push_sent_at, idempotency_key, deleted_at, created_at, updated_at`

func (db *DB) GetNotificationByIdempotencyKey(ctx context.Context, key string) (*models.Notification, error) {
	var n models.Notification
	query := db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE idempotency_key = ?`)
	if err := db.GetContext(ctx, &n, query, key); err != nil {
		return nil, normalize(err)
	}
	return &n, nil
}

// CreateNotification inserts n unless a notification with the same
// idempotency key exists, in which case n is overwritten with the stored row
// and created is false.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) (created bool, err error) {
	if n.IdempotencyKey != nil {
		existing, err := db.GetNotificationByIdempotencyKey(ctx, *n.IdempotencyKey)
		switch {
		case err == nil:
			*n = *existing
			return false, nil
		case !errors.Is(err, ErrNotFound):
			return false, fmt.Errorf("failed to look up notification: %w", err)
		}
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Payload == nil {
		n.Payload = models.Payload{}
	}
	ts := now()
	query := db.Rebind(`INSERT INTO notifications (id, recipient_id, notification_type, title, body, payload,
			is_read, push_sent, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = db.ExecContext(ctx, query, n.ID, n.RecipientID, n.Type, n.Title, n.Body, n.Payload,
		false, false, n.IdempotencyKey, ts, ts)
	if err != nil {
		// Lost a race with an identical request.
		if isUniqueViolation(err) && n.IdempotencyKey != nil {
			existing, lookupErr := db.GetNotificationByIdempotencyKey(ctx, *n.IdempotencyKey)
			if lookupErr != nil {
				return false, fmt.Errorf("failed to load duplicate notification: %w", lookupErr)
			}
			*n = *existing
			return false, nil
		}
		return false, fmt.Errorf("failed to create notification: %w", err)
	}
	n.IsRead, n.PushSent = false, false
	n.CreatedAt, n.UpdatedAt = ts, ts
	return true, nil
}

// GetNotification loads a notification, soft-deleted ones included.
func (db *DB) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := db.GetContext(ctx, &n, db.Rebind(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`), id); err != nil {
		return nil, normalize(err)
	}
	return &n, nil
}

func (db *DB) ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, error) {
	list := []models.Notification{}
	query := db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	if err := db.SelectContext(ctx, &list, query, recipientID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

func (db *DB) CountNotifications(ctx context.Context, recipientID string) (int, error) {
	var n int
	query := db.Rebind(`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND deleted_at IS NULL`)
	if err := db.GetContext(ctx, &n, query, recipientID); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

// MarkNotificationRead flags one of the recipient's notifications as read.
// Marking an already read notification is a no-op.
func (db *DB) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	ts := now()
	query := db.Rebind(`UPDATE notifications SET is_read = ?, read_at = ?, updated_at = ?
		WHERE id = ? AND recipient_id = ? AND is_read = ? AND deleted_at IS NULL`)
	res, err := db.ExecContext(ctx, query, true, ts, ts, id, recipientID, false)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	query = db.Rebind(`SELECT COUNT(*) FROM notifications WHERE id = ? AND recipient_id = ? AND deleted_at IS NULL`)
	if err := db.GetContext(ctx, &exists, query, id, recipientID); err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotificationsRead flags the listed unread notifications of the
// recipient as read and returns how many changed.
func (db *DB) MarkNotificationsRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ts := now()
	query, args, err := db.in(`UPDATE notifications SET is_read = ?, read_at = ?, updated_at = ?
		WHERE recipient_id = ? AND is_read = ? AND deleted_at IS NULL AND id IN (?)`,
		true, ts, ts, recipientID, false, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build mark read: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	ts := now()
	query := db.Rebind(`UPDATE notifications SET is_read = ?, read_at = ?, updated_at = ?
		WHERE recipient_id = ? AND is_read = ? AND deleted_at IS NULL`)
	res, err := db.ExecContext(ctx, query, true, ts, ts, recipientID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) UnreadNotificationCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	query := db.Rebind(`SELECT COUNT(*) FROM notifications
		WHERE recipient_id = ? AND is_read = ? AND deleted_at IS NULL`)
	if err := db.GetContext(ctx, &n, query, recipientID, false); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// SoftDeleteNotification hides one of the recipient's notifications.
func (db *DB) SoftDeleteNotification(ctx context.Context, id, recipientID string) error {
	ts := now()
	query := db.Rebind(`UPDATE notifications SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND recipient_id = ? AND deleted_at IS NULL`)
	res, err := db.ExecContext(ctx, query, ts, ts, id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) MarkPushSent(ctx context.Context, id string) error {
	ts := now()
	query := db.Rebind(`UPDATE notifications SET push_sent = ?, push_sent_at = ?, updated_at = ? WHERE id = ?`)
	res, err := db.ExecContext(ctx, query, true, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to mark push sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
