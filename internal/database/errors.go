package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicate              = errors.New("duplicate record")
	ErrConcurrentModification = errors.New("record was modified concurrently")

	ErrItemUnavailable     = errors.New("item is not available")
	ErrOwnerMismatch       = errors.New("owner does not own the item")
	ErrActiveBookingExists = errors.New("borrower already has an open booking for this item")
	ErrBookingOverlap      = errors.New("dates overlap an existing booking")
	ErrImageLimit          = errors.New("item image limit reached")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// normalize maps driver errors onto the package sentinels.
func normalize(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrDuplicate
	default:
		return err
	}
}
