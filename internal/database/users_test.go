package database

import (
	"context"
	"testing"

	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	email := "amina@example.com"
	user := &models.User{Username: "amina", Email: &email}
	require.NoError(t, db.CreateUser(ctx, user))
	require.NotEmpty(t, user.ID)

	found, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "amina", found.Username)
	assert.Equal(t, email, *found.Email)
	assert.Nil(t, found.Phone)

	byName, err := db.GetUserByUsername(ctx, "amina")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	phone := "+213555000111"
	updated, err := db.UpdateUser(ctx, user.ID, models.UserUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, *updated.Phone)
	assert.Equal(t, email, *updated.Email)

	byEmail, err := db.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	byPhone, err := db.GetUserByPhone(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byPhone.ID)
	_, err = db.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	empty := ""
	updated, err = db.UpdateUser(ctx, user.ID, models.UserUpdate{Email: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.Email)

	_, err = db.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.UpdateUser(ctx, "missing", models.UserUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserUniqueness(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "amina")
	other := seedUser(t, db, "yacine")

	err := db.CreateUser(ctx, &models.User{Username: "amina"})
	assert.ErrorIs(t, err, ErrDuplicate)

	taken := "amina"
	_, err = db.UpdateUser(ctx, other.ID, models.UserUpdate{Username: &taken})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Several users without email or phone are fine.
	seedUser(t, db, "third")
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		seedUser(t, db, name)
	}

	users, err := db.ListUsers(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = db.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	n, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
