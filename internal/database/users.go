package database

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, email, phone, avatar_url, rating_sum, rating_count, created_at, updated_at`

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	ts := now()
	query := db.Rebind(`INSERT INTO users (id, username, email, phone, avatar_url, rating_sum, rating_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`)
	if _, err := db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.Phone, user.AvatarURL, ts, ts); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.RatingSum, user.RatingCount = 0, 0
	user.CreatedAt, user.UpdatedAt = ts, ts
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, normalize(err)
	}
	return &user, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	if err != nil {
		return nil, normalize(err)
	}
	return &user, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUserWhere(ctx, "email", email)
}

func (db *DB) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return db.getUserWhere(ctx, "phone", phone)
}

func (db *DB) getUserWhere(ctx context.Context, column, value string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), value)
	if err != nil {
		return nil, normalize(err)
	}
	return &user, nil
}

// UpdateUser applies the non-nil fields of upd and returns the stored row.
func (db *DB) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, nullIfEmpty(*upd.Email))
	}
	if upd.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, nullIfEmpty(*upd.Phone))
	}
	if upd.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, nullIfEmpty(*upd.AvatarURL))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	query := db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetUserByID(ctx, id)
}

func (db *DB) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	users := []models.User{}
	query := db.Rebind(`SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	if err := db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// RatingAggregate reads the denormalized rating columns of a user.
func (db *DB) RatingAggregate(ctx context.Context, userID string) (*models.RatingAggregate, error) {
	agg := models.RatingAggregate{UserID: userID}
	row := db.QueryRowxContext(ctx, db.Rebind(`SELECT rating_sum, rating_count FROM users WHERE id = ?`), userID)
	if err := row.Scan(&agg.RatingSum, &agg.RatingCount); err != nil {
		return nil, normalize(err)
	}
	return &agg, nil
}

// RecomputeUserRating rebuilds a user's aggregate from the ratings table.
func (db *DB) RecomputeUserRating(ctx context.Context, userID string) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := db.lockUsers(ctx, tx, userID); err != nil {
			return err
		}
		return recomputeRatings(ctx, tx, userID)
	})
}

// lockUsers row-locks the given users in id order. Rating writers take it
// before touching the ledger, so a recompute issued afterwards sees every
// rating committed by whoever held the lock before.
func (db *DB) lockUsers(ctx context.Context, tx *sqlx.Tx, userIDs ...string) error {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	query := tx.Rebind(db.forUpdate(`SELECT id FROM users WHERE id = ?`))
	for _, id := range ids {
		var locked []string
		if err := tx.SelectContext(ctx, &locked, query, id); err != nil {
			return fmt.Errorf("failed to lock user %s: %w", id, err)
		}
	}
	return nil
}

// recomputeRatings re-aggregates rating_sum and rating_count from scratch
// for every given user, so the columns never drift from the ledger.
func recomputeRatings(ctx context.Context, tx *sqlx.Tx, userIDs ...string) error {
	query := tx.Rebind(`UPDATE users SET
			rating_sum = (SELECT COALESCE(SUM(stars), 0) FROM ratings WHERE target_user_id = ?),
			rating_count = (SELECT COUNT(*) FROM ratings WHERE target_user_id = ?),
			updated_at = ?
		WHERE id = ?`)
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		if _, err := tx.ExecContext(ctx, query, id, id, now(), id); err != nil {
			return fmt.Errorf("failed to recompute rating of user %s: %w", id, err)
		}
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
