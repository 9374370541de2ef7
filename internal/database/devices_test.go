package database

import (
	"context"
	"testing"

	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	phone := &models.UserDevice{UserID: alice.ID, FCMToken: "tok-1", DeviceType: models.DeviceAndroid, DeviceName: "Pixel"}
	require.NoError(t, db.UpsertDevice(ctx, phone))
	require.NotEmpty(t, phone.ID)
	assert.True(t, phone.IsActive)

	require.NoError(t, db.DeactivateDeviceByToken(ctx, "tok-1"))
	active, err := db.ListActiveDevices(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Registering the same token again moves it to the new user and revives it.
	again := &models.UserDevice{UserID: bob.ID, FCMToken: "tok-1", DeviceType: models.DeviceIOS}
	require.NoError(t, db.UpsertDevice(ctx, again))
	assert.Equal(t, phone.ID, again.ID)

	got, err := db.GetDevice(ctx, phone.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.UserID)
	assert.True(t, got.IsActive)
	assert.Equal(t, models.DeviceIOS, got.DeviceType)

	aliceDevices, err := db.ListDevices(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceDevices)

	got.DeviceName = "iPhone"
	got.IsActive = false
	require.NoError(t, db.UpdateDevice(ctx, got))
	active, err = db.ListActiveDevices(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, db.TouchDevice(ctx, got.ID))
	require.NoError(t, db.DeleteDevice(ctx, got.ID))
	assert.ErrorIs(t, db.DeleteDevice(ctx, got.ID), ErrNotFound)
	_, err = db.GetDevice(ctx, got.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
