package database

import (
	"context"
	"fmt"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const bookingSelect = `SELECT b.id, b.item_id, b.owner_id, b.borrower_id, b.status, b.deposit_status, b.booking_code,
		b.start_date, b.return_by_date, b.total_cost, b.version, b.created_at, b.updated_at,
		i.title AS item_title, o.username AS owner_username, br.username AS borrower_username,
		(SELECT im.image_url FROM item_images im WHERE im.item_id = b.item_id ORDER BY im.position LIMIT 1) AS image_url
	FROM bookings b
	JOIN items i ON i.id = b.item_id
	JOIN users o ON o.id = b.owner_id
	JOIN users br ON br.id = b.borrower_id`

// CreateBookingWithLock inserts a pending booking after checking, under the
// item lock, that the item is bookable, that the borrower has no other open
// booking on it and that the dates are free.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		var item struct {
			OwnerID     string `db:"owner_id"`
			IsAvailable bool   `db:"is_available"`
		}
		lockQuery := tx.Rebind(db.forUpdate(`SELECT owner_id, is_available FROM items WHERE id = ?`))
		if err := tx.GetContext(ctx, &item, lockQuery, booking.ItemID); err != nil {
			return normalize(err)
		}
		if booking.OwnerID != item.OwnerID {
			return ErrOwnerMismatch
		}
		if !item.IsAvailable {
			return ErrItemUnavailable
		}

		open := []models.Booking{}
		openQuery, args, err := db.in(`SELECT id, borrower_id, start_date, return_by_date FROM bookings
			WHERE item_id = ? AND status IN (?)`, booking.ItemID, models.NonTerminalStatuses)
		if err != nil {
			return fmt.Errorf("failed to build open bookings query: %w", err)
		}
		if err := tx.SelectContext(ctx, &open, openQuery, args...); err != nil {
			return fmt.Errorf("failed to load open bookings: %w", err)
		}
		for i := range open {
			if open[i].BorrowerID == booking.BorrowerID {
				return ErrActiveBookingExists
			}
		}
		for i := range open {
			if open[i].Overlaps(booking.StartDate, booking.ReturnByDate) {
				return ErrBookingOverlap
			}
		}

		if booking.ID == "" {
			booking.ID = uuid.NewString()
		}
		ts := now()
		booking.Status = models.StatusPending
		booking.DepositStatus = models.DepositNone
		booking.Version = 1
		insert := tx.Rebind(`INSERT INTO bookings (id, item_id, owner_id, borrower_id, status, deposit_status,
				booking_code, start_date, return_by_date, total_cost, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, 1, ?, ?)`)
		_, err = tx.ExecContext(ctx, insert,
			booking.ID, booking.ItemID, booking.OwnerID, booking.BorrowerID, booking.Status, booking.DepositStatus,
			booking.StartDate, booking.ReturnByDate, booking.TotalCost, ts, ts,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrActiveBookingExists
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		booking.CreatedAt, booking.UpdatedAt = ts, ts
		return nil
	})
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := db.GetContext(ctx, &b, db.Rebind(bookingSelect+` WHERE b.id = ?`), id); err != nil {
		return nil, normalize(err)
	}
	return &b, nil
}

func (db *DB) selectBookings(ctx context.Context, where string, args ...any) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query, qargs, err := db.in(bookingSelect+` WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build booking query: %w", err)
	}
	if err := db.SelectContext(ctx, &bookings, query, qargs...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListBookingsForUser returns every booking the user takes part in.
func (db *DB) ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return db.selectBookings(ctx, `b.owner_id = ? OR b.borrower_id = ? ORDER BY b.created_at DESC`, userID, userID)
}

// ListIncomingBookings returns requests made on the owner's items, newest first.
func (db *DB) ListIncomingBookings(ctx context.Context, ownerID string) ([]models.Booking, error) {
	return db.selectBookings(ctx, `b.owner_id = ? ORDER BY b.created_at DESC`, ownerID)
}

// ListMyRequests returns the borrower's own requests, newest first.
func (db *DB) ListMyRequests(ctx context.Context, borrowerID string) ([]models.Booking, error) {
	return db.selectBookings(ctx, `b.borrower_id = ? ORDER BY b.created_at DESC`, borrowerID)
}

func (db *DB) ListUserTransactions(ctx context.Context, userID string, limit int) ([]models.UserTransaction, error) {
	bookings, err := db.selectBookings(ctx,
		`b.owner_id = ? OR b.borrower_id = ? ORDER BY b.created_at DESC LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserTransaction, len(bookings))
	for i, b := range bookings {
		out[i] = models.UserTransaction{Booking: b, IsBorrower: b.BorrowerID == userID}
	}
	return out, nil
}

// ListPendingBookingsForItem returns the item's requests still awaiting an answer.
func (db *DB) ListPendingBookingsForItem(ctx context.Context, itemID string) ([]models.Booking, error) {
	return db.selectBookings(ctx, `b.item_id = ? AND b.status = ? ORDER BY b.created_at`, itemID, models.StatusPending)
}

// ListActiveBookingsDue returns active bookings whose return-by date is day.
func (db *DB) ListActiveBookingsDue(ctx context.Context, day models.Date) ([]models.Booking, error) {
	return db.selectBookings(ctx, `b.status = ? AND b.return_by_date = ? ORDER BY b.return_by_date`,
		models.StatusActive, day)
}

// ListOverdueBookings returns active bookings whose return-by date is before day.
func (db *DB) ListOverdueBookings(ctx context.Context, day models.Date) ([]models.Booking, error) {
	return db.selectBookings(ctx, `b.status = ? AND b.return_by_date < ? ORDER BY b.return_by_date`,
		models.StatusActive, day)
}

// TransitionBooking moves a booking between states with a single guarded
// update. It fails with ErrConcurrentModification when the row no longer
// has the expected version, status or deposit status.
func (db *DB) TransitionBooking(ctx context.Context, id string, version int64, tr models.BookingTransition) (*models.Booking, error) {
	query := db.Rebind(`UPDATE bookings SET status = ?, deposit_status = ?,
			booking_code = COALESCE(booking_code, ?), version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ? AND deposit_status = ?`)
	res, err := db.ExecContext(ctx, query,
		tr.Status, tr.DepositStatus, tr.Code, now(),
		id, version, tr.FromStatus, tr.FromDepositStatus,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to transition booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetBooking(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentModification
	}
	return db.GetBooking(ctx, id)
}

// SetBookingCode assigns code when the booking has none and returns the
// stored booking either way.
func (db *DB) SetBookingCode(ctx context.Context, id, code string) (*models.Booking, error) {
	query := db.Rebind(`UPDATE bookings SET booking_code = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND booking_code IS NULL`)
	if _, err := db.ExecContext(ctx, query, code, now(), id); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to set booking code: %w", err)
	}
	return db.GetBooking(ctx, id)
}

// DeleteBooking removes the booking when its status is one of allowed.
func (db *DB) DeleteBooking(ctx context.Context, id string, allowed []models.BookingStatus) error {
	query, args, err := db.in(`DELETE FROM bookings WHERE id = ? AND status IN (?)`, id, allowed)
	if err != nil {
		return fmt.Errorf("failed to build booking delete: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetBooking(ctx, id); err != nil {
			return err
		}
		return ErrConcurrentModification
	}
	return nil
}
