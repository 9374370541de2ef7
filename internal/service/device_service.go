package service

import (
	"context"
	"fmt"
	"strings"

	"selefli/internal/domain"
	"selefli/internal/models"

	"github.com/rs/zerolog"
)

type DeviceService struct {
	repo   domain.DeviceRepository
	logger *zerolog.Logger
}

func NewDeviceService(repo domain.DeviceRepository, logger *zerolog.Logger) *DeviceService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DeviceService{repo: repo, logger: logger}
}

type RegisterDeviceInput struct {
	FCMToken   string            `json:"fcm_token"`
	DeviceType models.DeviceType `json:"device_type"`
	DeviceName string            `json:"device_name"`
}

// Register binds a push token to the actor. A token seen before moves to the
// actor and becomes active again.
func (s *DeviceService) Register(ctx context.Context, actorID string, in RegisterDeviceInput) (*models.UserDevice, error) {
	token := strings.TrimSpace(in.FCMToken)
	if token == "" {
		return nil, invalid("fcm_token", "This field is required.")
	}
	if !in.DeviceType.Valid() {
		return nil, invalid("device_type", fmt.Sprintf("%q is not a valid choice.", in.DeviceType))
	}
	device := &models.UserDevice{
		UserID:     actorID,
		FCMToken:   token,
		DeviceType: in.DeviceType,
		DeviceName: strings.TrimSpace(in.DeviceName),
	}
	if err := s.repo.UpsertDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	s.logger.Info().Str("device_id", device.ID).Str("user_id", actorID).Str("type", string(device.DeviceType)).Msg("device registered")
	return device, nil
}

func (s *DeviceService) List(ctx context.Context, actorID string) ([]models.UserDevice, error) {
	return s.repo.ListDevices(ctx, actorID)
}

type UpdateDeviceInput struct {
	DeviceType *models.DeviceType `json:"device_type"`
	DeviceName *string            `json:"device_name"`
	IsActive   *bool              `json:"is_active"`
}

// owned hides other users' devices behind not found.
func (s *DeviceService) owned(ctx context.Context, actorID, id string) (*models.UserDevice, error) {
	device, err := s.repo.GetDevice(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	if device.UserID != actorID {
		return nil, ErrNotFound
	}
	return device, nil
}

func (s *DeviceService) Update(ctx context.Context, actorID, id string, in UpdateDeviceInput) (*models.UserDevice, error) {
	device, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if in.DeviceType != nil {
		if !in.DeviceType.Valid() {
			return nil, invalid("device_type", fmt.Sprintf("%q is not a valid choice.", *in.DeviceType))
		}
		device.DeviceType = *in.DeviceType
	}
	if in.DeviceName != nil {
		device.DeviceName = strings.TrimSpace(*in.DeviceName)
	}
	if in.IsActive != nil {
		device.IsActive = *in.IsActive
	}
	if err := s.repo.UpdateDevice(ctx, device); err != nil {
		return nil, storageError(err)
	}
	return device, nil
}

func (s *DeviceService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.owned(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteDevice(ctx, id); err != nil {
		return storageError(err)
	}
	s.logger.Info().Str("device_id", id).Str("user_id", actorID).Msg("device removed")
	return nil
}
