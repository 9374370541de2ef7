package service

import (
	"context"
	"path/filepath"
	"testing"

	"selefli/internal/database"
	"selefli/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	jan10 = models.NewDate(2030, 1, 10)
	jan12 = models.NewDate(2030, 1, 12)
	jan15 = models.NewDate(2030, 1, 15)
	jan20 = models.NewDate(2030, 1, 20)
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *database.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func seedItem(t *testing.T, db *database.DB, ownerID string) *models.Item {
	t.Helper()
	item := &models.Item{
		OwnerID:        ownerID,
		Title:          "Camping Tent",
		Category:       "Outdoor",
		EstimatedValue: decimal.RequireFromString("250"),
		DepositAmount:  decimal.RequireFromString("50"),
		IsAvailable:    true,
	}
	require.NoError(t, db.CreateItem(context.Background(), item))
	return item
}

type mockNotifier struct {
	mock.Mock
}

// newMockNotifier accepts every notification so tests only assert the ones they care about.
func newMockNotifier() *mockNotifier {
	n := &mockNotifier{}
	for _, method := range []string{
		"BookingCreated", "BookingAccepted", "BookingDeclined", "BookingStarted", "BookingReturned",
		"DepositKept", "BookingCanceled", "RatingReceived", "RatingModified", "BookingReminder", "BookingOverdue",
	} {
		n.On(method, mock.Anything, mock.Anything).Maybe()
	}
	n.On("ItemDeleted", mock.Anything, mock.Anything, mock.Anything).Maybe()
	n.On("ItemUnavailable", mock.Anything, mock.Anything, mock.Anything).Maybe()
	return n
}

func (m *mockNotifier) BookingCreated(ctx context.Context, b *models.Booking)  { m.Called(ctx, b) }
func (m *mockNotifier) BookingAccepted(ctx context.Context, b *models.Booking) { m.Called(ctx, b) }
func (m *mockNotifier) BookingDeclined(ctx context.Context, b *models.Booking) { m.Called(ctx, b) }
func (m *mockNotifier) BookingStarted(ctx context.Context, b *models.Booking)  { m.Called(ctx, b) }
func (m *mockNotifier) BookingReturned(ctx context.Context, b *models.Booking) { m.Called(ctx, b) }
func (m *mockNotifier) DepositKept(ctx context.Context, b *models.Booking)     { m.Called(ctx, b) }
func (m *mockNotifier) BookingCanceled(ctx context.Context, b *models.Booking) { m.Called(ctx, b) }
func (m *mockNotifier) ItemDeleted(ctx context.Context, item *models.Item, affected []models.Booking) {
	m.Called(ctx, item, affected)
}
func (m *mockNotifier) ItemUnavailable(ctx context.Context, item *models.Item, affected []models.Booking) {
	m.Called(ctx, item, affected)
}
func (m *mockNotifier) RatingReceived(ctx context.Context, r *models.Rating)   { m.Called(ctx, r) }
func (m *mockNotifier) RatingModified(ctx context.Context, r *models.Rating)   { m.Called(ctx, r) }
func (m *mockNotifier) BookingReminder(ctx context.Context, b *models.Booking) { m.Called(ctx, b) }
func (m *mockNotifier) BookingOverdue(ctx context.Context, b *models.Booking)  { m.Called(ctx, b) }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upload(ctx context.Context, bucket, path, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, bucket, path, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Remove(ctx context.Context, bucket string, paths ...string) error {
	return m.Called(ctx, bucket, paths).Error(0)
}

func (m *mockStore) PathFromURL(bucket, url string) (string, bool) {
	args := m.Called(bucket, url)
	return args.String(0), args.Bool(1)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueNotification(ctx context.Context, notificationID string) error {
	return m.Called(ctx, notificationID).Error(0)
}
