package database

import (
	"context"
	"database/sql"
	"fmt"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// schema is applied in order on every start. Statements must stay valid for
// both sqlite3 and postgres and must be idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		phone TEXT UNIQUE,
		avatar_url TEXT,
		rating_sum INTEGER NOT NULL DEFAULT 0,
		rating_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		estimated_value NUMERIC(12,2) NOT NULL DEFAULT 0,
		deposit_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		start_date DATE,
		end_date DATE,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_category ON items(category)`,
	`CREATE TABLE IF NOT EXISTS item_images (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		image_url TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (item_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		borrower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		deposit_status TEXT NOT NULL DEFAULT 'none',
		booking_code TEXT UNIQUE,
		start_date DATE NOT NULL,
		return_by_date DATE NOT NULL,
		total_cost NUMERIC(12,2),
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (owner_id <> borrower_id),
		CHECK (return_by_date > start_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_item_status ON bookings(item_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_owner ON bookings(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_borrower ON bookings(borrower_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_open_pair ON bookings(item_id, borrower_id)
		WHERE status IN ('pending', 'accepted', 'active')`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		rater_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		target_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		stars INTEGER NOT NULL CHECK (stars BETWEEN 1 AND 5),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (booking_id, rater_id),
		CHECK (rater_id <> target_user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ratings_target ON ratings(target_user_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		notification_type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TIMESTAMP,
		push_sent BOOLEAN NOT NULL DEFAULT FALSE,
		push_sent_at TIMESTAMP,
		idempotency_key TEXT UNIQUE,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_read ON notifications(recipient_id, is_read)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications(recipient_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_devices (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		fcm_token TEXT NOT NULL UNIQUE,
		device_type TEXT NOT NULL,
		device_name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_devices_user_active ON user_devices(user_id, is_active)`,
	`CREATE TABLE IF NOT EXISTS push_queue (
		id TEXT PRIMARY KEY,
		notification_id TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		next_retry_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_push_queue_status ON push_queue(status, next_retry_at)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db execer) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
