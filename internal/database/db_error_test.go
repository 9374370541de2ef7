package database

import (
	"context"
	"testing"

	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	db := setupTestDB(t)
	db.Close() // every call below hits a closed pool

	ctx := context.Background()

	t.Run("CreateUser", func(t *testing.T) {
		assert.Error(t, db.CreateUser(ctx, &models.User{Username: "x"}))
	})
	t.Run("ListItems", func(t *testing.T) {
		_, _, err := db.ListItems(ctx, models.ItemFilter{})
		assert.Error(t, err)
	})
	t.Run("CreateBookingWithLock", func(t *testing.T) {
		assert.Error(t, db.CreateBookingWithLock(ctx, &models.Booking{}))
	})
	t.Run("TransitionBooking", func(t *testing.T) {
		_, err := db.TransitionBooking(ctx, "id", 1, models.BookingTransition{})
		assert.Error(t, err)
	})
	t.Run("CreateRatingWithAggregate", func(t *testing.T) {
		assert.Error(t, db.CreateRatingWithAggregate(ctx, &models.Rating{}))
	})
	t.Run("CreateNotification", func(t *testing.T) {
		_, err := db.CreateNotification(ctx, &models.Notification{})
		assert.Error(t, err)
	})
	t.Run("UnreadNotificationCount", func(t *testing.T) {
		_, err := db.UnreadNotificationCount(ctx, "u")
		assert.Error(t, err)
	})
	t.Run("UpsertDevice", func(t *testing.T) {
		assert.Error(t, db.UpsertDevice(ctx, &models.UserDevice{}))
	})
	t.Run("GetPendingPushTasks", func(t *testing.T) {
		_, err := db.GetPendingPushTasks(ctx, 1)
		assert.Error(t, err)
	})
	t.Run("DeleteItem", func(t *testing.T) {
		_, err := db.DeleteItem(ctx, "id")
		assert.Error(t, err)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "dup")

	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (id, username, created_at, updated_at) VALUES ('x', 'dup', '2030-01-01', '2030-01-01')`)
	assert.True(t, isUniqueViolation(err))
	assert.ErrorIs(t, normalize(err), ErrDuplicate)
	assert.False(t, isUniqueViolation(assert.AnError))
}
