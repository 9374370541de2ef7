package service

import (
	"context"
	"testing"

	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDevice(t *testing.T) {
	db := setupDB(t)
	svc := NewDeviceService(db, nil)
	ctx := context.Background()
	kim := seedUser(t, db, "kim")
	lee := seedUser(t, db, "lee")

	d, err := svc.Register(ctx, kim.ID, RegisterDeviceInput{FCMToken: " tok-1 ", DeviceType: models.DeviceAndroid, DeviceName: "Pixel"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", d.FCMToken)
	assert.True(t, d.IsActive)

	// Same token on another account moves the device.
	moved, err := svc.Register(ctx, lee.ID, RegisterDeviceInput{FCMToken: "tok-1", DeviceType: models.DeviceAndroid})
	require.NoError(t, err)
	assert.Equal(t, d.ID, moved.ID)

	kims, err := svc.List(ctx, kim.ID)
	require.NoError(t, err)
	assert.Empty(t, kims)
	lees, err := svc.List(ctx, lee.ID)
	require.NoError(t, err)
	assert.Len(t, lees, 1)

	_, err = svc.Register(ctx, kim.ID, RegisterDeviceInput{DeviceType: models.DeviceIOS})
	assertValidation(t, err, "fcm_token")
	_, err = svc.Register(ctx, kim.ID, RegisterDeviceInput{FCMToken: "tok-2", DeviceType: "fridge"})
	assertValidation(t, err, "device_type")
}

func TestUpdateAndDeleteDevice(t *testing.T) {
	db := setupDB(t)
	svc := NewDeviceService(db, nil)
	ctx := context.Background()
	kim := seedUser(t, db, "kim")
	lee := seedUser(t, db, "lee")
	d, err := svc.Register(ctx, kim.ID, RegisterDeviceInput{FCMToken: "tok-1", DeviceType: models.DeviceWeb})
	require.NoError(t, err)

	off, name := false, "Laptop"
	updated, err := svc.Update(ctx, kim.ID, d.ID, UpdateDeviceInput{IsActive: &off, DeviceName: &name})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Laptop", updated.DeviceName)

	bad := models.DeviceType("toaster")
	_, err = svc.Update(ctx, kim.ID, d.ID, UpdateDeviceInput{DeviceType: &bad})
	assertValidation(t, err, "device_type")

	_, err = svc.Update(ctx, lee.ID, d.ID, UpdateDeviceInput{IsActive: &off})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, lee.ID, d.ID), ErrNotFound)

	require.NoError(t, svc.Delete(ctx, kim.ID, d.ID))
	assert.ErrorIs(t, svc.Delete(ctx, kim.ID, d.ID), ErrNotFound)
}
