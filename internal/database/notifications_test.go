package database

import (
	"context"
	"sync"
	"testing"

	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(recipientID, key string) *models.Notification {
	n := &models.Notification{
		RecipientID: recipientID,
		Type:        models.NotificationBookingCreated,
		Title:       "New booking request",
		Body:        "alice wants to borrow your drill",
		Payload:     models.Payload{"booking_id": "b-1"},
	}
	if key != "" {
		n.IdempotencyKey = &key
	}
	return n
}

func TestCreateNotificationIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	first := newNotification(owner.ID, "key-1")
	created, err := db.CreateNotification(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := newNotification(owner.ID, "key-1")
	second.Title = "Different"
	created, err = db.CreateNotification(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "New booking request", second.Title)
	assert.Equal(t, "b-1", second.Payload["booking_id"])

	// No key means no deduplication.
	_, err = db.CreateNotification(ctx, newNotification(owner.ID, ""))
	require.NoError(t, err)
	_, err = db.CreateNotification(ctx, newNotification(owner.ID, ""))
	require.NoError(t, err)

	count, err := db.CountNotifications(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCreateNotificationConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := newNotification(owner.ID, "same-key")
			if _, err := db.CreateNotification(ctx, n); err == nil {
				ids <- n.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)

	count, err := db.CountNotifications(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationReadState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	stranger := seedUser(t, db, "stranger")

	var ids []string
	for _, key := range []string{"a", "b", "c", "d"} {
		n := newNotification(owner.ID, key)
		_, err := db.CreateNotification(ctx, n)
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	unread, err := db.UnreadNotificationCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, unread)

	require.NoError(t, db.MarkNotificationRead(ctx, ids[0], owner.ID))
	require.NoError(t, db.MarkNotificationRead(ctx, ids[0], owner.ID))
	assert.ErrorIs(t, db.MarkNotificationRead(ctx, ids[0], stranger.ID), ErrNotFound)

	n, err := db.GetNotification(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	assert.NotNil(t, n.ReadAt)

	changed, err := db.MarkNotificationsRead(ctx, owner.ID, []string{ids[0], ids[1]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	require.NoError(t, db.SoftDeleteNotification(ctx, ids[2], owner.ID))
	assert.ErrorIs(t, db.SoftDeleteNotification(ctx, ids[2], owner.ID), ErrNotFound)
	assert.ErrorIs(t, db.SoftDeleteNotification(ctx, ids[3], stranger.ID), ErrNotFound)

	unread, err = db.UnreadNotificationCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	list, err := db.ListNotifications(ctx, owner.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	all, err := db.MarkAllNotificationsRead(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), all)

	unread, err = db.UnreadNotificationCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestMarkPushSent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	n := newNotification(owner.ID, "k")
	_, err := db.CreateNotification(ctx, n)
	require.NoError(t, err)

	require.NoError(t, db.MarkPushSent(ctx, n.ID))
	got, err := db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.PushSent)
	assert.NotNil(t, got.PushSentAt)

	assert.ErrorIs(t, db.MarkPushSent(ctx, "missing"), ErrNotFound)
}
