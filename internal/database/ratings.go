package database

import (
	"context"
	"fmt"
	"strings"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const ratingColumns = `id, booking_id, rater_id, target_user_id, stars, created_at, updated_at`

// CreateRatingWithAggregate stores a rating and rebuilds the target's
// aggregate in the same transaction.
func (db *DB) CreateRatingWithAggregate(ctx context.Context, rating *models.Rating) error {
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	ts := now()
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := db.lockUsers(ctx, tx, rating.TargetUserID); err != nil {
			return err
		}
		query := tx.Rebind(`INSERT INTO ratings (id, booking_id, rater_id, target_user_id, stars, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, query, rating.ID, rating.BookingID, rating.RaterID, rating.TargetUserID, rating.Stars, ts, ts)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to create rating: %w", err)
		}
		rating.CreatedAt, rating.UpdatedAt = ts, ts
		return recomputeRatings(ctx, tx, rating.TargetUserID)
	})
}

// UpdateRatingWithAggregate changes the stars of a rating and rebuilds the
// target's aggregate.
func (db *DB) UpdateRatingWithAggregate(ctx context.Context, id string, stars int) (*models.Rating, error) {
	var rating models.Rating
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &rating, tx.Rebind(`SELECT `+ratingColumns+` FROM ratings WHERE id = ?`), id); err != nil {
			return normalize(err)
		}
		if err := db.lockUsers(ctx, tx, rating.TargetUserID); err != nil {
			return err
		}
		ts := now()
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE ratings SET stars = ?, updated_at = ? WHERE id = ?`), stars, ts, id); err != nil {
			return fmt.Errorf("failed to update rating: %w", err)
		}
		rating.Stars, rating.UpdatedAt = stars, ts
		return recomputeRatings(ctx, tx, rating.TargetUserID)
	})
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

// DeleteRatingWithAggregate removes a rating, returning it, and rebuilds the
// target's aggregate.
func (db *DB) DeleteRatingWithAggregate(ctx context.Context, id string) (*models.Rating, error) {
	var rating models.Rating
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &rating, tx.Rebind(`SELECT `+ratingColumns+` FROM ratings WHERE id = ?`), id); err != nil {
			return normalize(err)
		}
		if err := db.lockUsers(ctx, tx, rating.TargetUserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM ratings WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete rating: %w", err)
		}
		return recomputeRatings(ctx, tx, rating.TargetUserID)
	})
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

func (db *DB) GetRating(ctx context.Context, id string) (*models.Rating, error) {
	var rating models.Rating
	if err := db.GetContext(ctx, &rating, db.Rebind(`SELECT `+ratingColumns+` FROM ratings WHERE id = ?`), id); err != nil {
		return nil, normalize(err)
	}
	return &rating, nil
}

func (db *DB) ListRatings(ctx context.Context, filter models.RatingFilter) ([]models.Rating, error) {
	where := []string{"1 = 1"}
	args := []any{}
	if filter.TargetUserID != "" {
		where = append(where, "target_user_id = ?")
		args = append(args, filter.TargetUserID)
	}
	if filter.RaterID != "" {
		where = append(where, "rater_id = ?")
		args = append(args, filter.RaterID)
	}
	if filter.BookingID != "" {
		where = append(where, "booking_id = ?")
		args = append(args, filter.BookingID)
	}
	ratings := []models.Rating{}
	query := db.Rebind(`SELECT ` + ratingColumns + ` FROM ratings WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`)
	if err := db.SelectContext(ctx, &ratings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	return ratings, nil
}

func (db *DB) HasRated(ctx context.Context, bookingID, raterID string) (bool, error) {
	var n int
	query := db.Rebind(`SELECT COUNT(*) FROM ratings WHERE booking_id = ? AND rater_id = ?`)
	if err := db.GetContext(ctx, &n, query, bookingID, raterID); err != nil {
		return false, fmt.Errorf("failed to check rating: %w", err)
	}
	return n > 0, nil
}
