package database

import (
	"context"
	"fmt"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const deviceColumns = `id, user_id, fcm_token, device_type, device_name, is_active, last_used_at, created_at, updated_at`

// UpsertDevice registers a token. A known token is reassigned to the
// device's user and reactivated.
func (db *DB) UpsertDevice(ctx context.Context, device *models.UserDevice) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		var existing models.UserDevice
		query := tx.Rebind(`SELECT ` + deviceColumns + ` FROM user_devices WHERE fcm_token = ?`)
		err := tx.GetContext(ctx, &existing, query, device.FCMToken)
		switch normalize(err) {
		case nil:
			upd := tx.Rebind(`UPDATE user_devices SET user_id = ?, device_type = ?, device_name = ?,
				is_active = ?, last_used_at = ?, updated_at = ? WHERE id = ?`)
			if _, err := tx.ExecContext(ctx, upd, device.UserID, device.DeviceType, device.DeviceName,
				true, ts, ts, existing.ID); err != nil {
				return fmt.Errorf("failed to update device: %w", err)
			}
			device.ID = existing.ID
			device.CreatedAt = existing.CreatedAt
		case ErrNotFound:
			device.ID = uuid.NewString()
			ins := tx.Rebind(`INSERT INTO user_devices (id, user_id, fcm_token, device_type, device_name,
				is_active, last_used_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if _, err := tx.ExecContext(ctx, ins, device.ID, device.UserID, device.FCMToken, device.DeviceType,
				device.DeviceName, true, ts, ts, ts); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("failed to insert device: %w", err)
			}
			device.CreatedAt = ts
		default:
			return fmt.Errorf("failed to look up device: %w", err)
		}
		device.IsActive = true
		device.LastUsedAt = &ts
		device.UpdatedAt = ts
		return nil
	})
}

func (db *DB) GetDevice(ctx context.Context, id string) (*models.UserDevice, error) {
	var d models.UserDevice
	if err := db.GetContext(ctx, &d, db.Rebind(`SELECT `+deviceColumns+` FROM user_devices WHERE id = ?`), id); err != nil {
		return nil, normalize(err)
	}
	return &d, nil
}

func (db *DB) ListDevices(ctx context.Context, userID string) ([]models.UserDevice, error) {
	devices := []models.UserDevice{}
	query := db.Rebind(`SELECT ` + deviceColumns + ` FROM user_devices WHERE user_id = ? ORDER BY created_at DESC`)
	if err := db.SelectContext(ctx, &devices, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (db *DB) ListActiveDevices(ctx context.Context, userID string) ([]models.UserDevice, error) {
	devices := []models.UserDevice{}
	query := db.Rebind(`SELECT ` + deviceColumns + ` FROM user_devices WHERE user_id = ? AND is_active = ? ORDER BY created_at`)
	if err := db.SelectContext(ctx, &devices, query, userID, true); err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}
	return devices, nil
}

// UpdateDevice writes the mutable columns of device.
func (db *DB) UpdateDevice(ctx context.Context, device *models.UserDevice) error {
	ts := now()
	query := db.Rebind(`UPDATE user_devices SET device_type = ?, device_name = ?, is_active = ?, updated_at = ? WHERE id = ?`)
	res, err := db.ExecContext(ctx, query, device.DeviceType, device.DeviceName, device.IsActive, ts, device.ID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	device.UpdatedAt = ts
	return nil
}

func (db *DB) DeleteDevice(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM user_devices WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateDeviceByToken stops pushes to a token the gateway rejected.
func (db *DB) DeactivateDeviceByToken(ctx context.Context, token string) error {
	ts := now()
	query := db.Rebind(`UPDATE user_devices SET is_active = ?, updated_at = ? WHERE fcm_token = ?`)
	if _, err := db.ExecContext(ctx, query, false, ts, token); err != nil {
		return fmt.Errorf("failed to deactivate device: %w", err)
	}
	return nil
}

func (db *DB) TouchDevice(ctx context.Context, id string) error {
	ts := now()
	query := db.Rebind(`UPDATE user_devices SET last_used_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := db.ExecContext(ctx, query, ts, ts, id); err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}
