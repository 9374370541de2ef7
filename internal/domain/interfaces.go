package domain

import (
	"context"
	"time"

	"selefli/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	CountUsers(ctx context.Context) (int, error)
	RatingAggregate(ctx context.Context, userID string) (*models.RatingAggregate, error)
}

type ItemRepository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	UpdateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id string) (*models.ItemDeletion, error)
	ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)

	ListItemImages(ctx context.Context, itemID string) ([]models.ItemImage, error)
	GetItemImage(ctx context.Context, id string) (*models.ItemImage, error)
	ListItemImagesByURL(ctx context.Context, url string) ([]models.ItemImage, error)
	AddItemImages(ctx context.Context, itemID string, images []models.ItemImage) ([]models.ItemImage, error)
	DeleteItemImage(ctx context.Context, id string) error
	DeleteItemImagesByURL(ctx context.Context, url string) ([]models.ItemImage, error)
	DeleteItemImagesExcept(ctx context.Context, itemID string, keepIDs []string) ([]models.ItemImage, error)
	DeleteItemImagesNotInPositions(ctx context.Context, itemID string, positions []int) ([]models.ItemImage, error)
	SyncItemImages(ctx context.Context, itemID string, sync models.ImageSync) (removed, created []models.ItemImage, err error)
	ReorderItemImages(ctx context.Context, itemID string, orderedIDs []string) ([]models.ItemImage, error)

	ListPendingBookingsForItem(ctx context.Context, itemID string) ([]models.Booking, error)
}

type BookingRepository interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListIncomingBookings(ctx context.Context, ownerID string) ([]models.Booking, error)
	ListMyRequests(ctx context.Context, borrowerID string) ([]models.Booking, error)
	ListUserTransactions(ctx context.Context, userID string, limit int) ([]models.UserTransaction, error)
	TransitionBooking(ctx context.Context, id string, version int64, tr models.BookingTransition) (*models.Booking, error)
	SetBookingCode(ctx context.Context, id, code string) (*models.Booking, error)
	DeleteBooking(ctx context.Context, id string, allowed []models.BookingStatus) error
}

// ScheduleRepository feeds the daily reminder sweep.
type ScheduleRepository interface {
	ListActiveBookingsDue(ctx context.Context, day models.Date) ([]models.Booking, error)
	ListOverdueBookings(ctx context.Context, day models.Date) ([]models.Booking, error)
}

type RatingRepository interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateRatingWithAggregate(ctx context.Context, rating *models.Rating) error
	UpdateRatingWithAggregate(ctx context.Context, id string, stars int) (*models.Rating, error)
	DeleteRatingWithAggregate(ctx context.Context, id string) (*models.Rating, error)
	GetRating(ctx context.Context, id string) (*models.Rating, error)
	ListRatings(ctx context.Context, filter models.RatingFilter) ([]models.Rating, error)
	HasRated(ctx context.Context, bookingID, raterID string) (bool, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) (bool, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, error)
	CountNotifications(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string) error
	MarkNotificationsRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	UnreadNotificationCount(ctx context.Context, recipientID string) (int, error)
	SoftDeleteNotification(ctx context.Context, id, recipientID string) error
}

type DeviceRepository interface {
	UpsertDevice(ctx context.Context, device *models.UserDevice) error
	GetDevice(ctx context.Context, id string) (*models.UserDevice, error)
	ListDevices(ctx context.Context, userID string) ([]models.UserDevice, error)
	UpdateDevice(ctx context.Context, device *models.UserDevice) error
	DeleteDevice(ctx context.Context, id string) error
}

// PushRepository is what the push worker needs from storage.
type PushRepository interface {
	CreatePushTask(ctx context.Context, task *models.PushTask) error
	GetPushTask(ctx context.Context, id string) (*models.PushTask, error)
	GetPendingPushTasks(ctx context.Context, limit int) ([]models.PushTask, error)
	GetFailedPushTasks(ctx context.Context) ([]models.PushTask, error)
	UpdatePushTaskStatus(ctx context.Context, id, status, errMsg string, nextRetryAt *time.Time) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	MarkPushSent(ctx context.Context, id string) error
	ListActiveDevices(ctx context.Context, userID string) ([]models.UserDevice, error)
	DeactivateDeviceByToken(ctx context.Context, token string) error
	TouchDevice(ctx context.Context, id string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// PushEnqueuer schedules push delivery of a stored notification.
type PushEnqueuer interface {
	EnqueueNotification(ctx context.Context, notificationID string) error
}

// Notifier is the dispatcher surface used by the other services. Failures
// are handled inside and never abort the caller's operation.
type Notifier interface {
	BookingCreated(ctx context.Context, b *models.Booking)
	BookingAccepted(ctx context.Context, b *models.Booking)
	BookingDeclined(ctx context.Context, b *models.Booking)
	BookingStarted(ctx context.Context, b *models.Booking)
	BookingReturned(ctx context.Context, b *models.Booking)
	DepositKept(ctx context.Context, b *models.Booking)
	BookingCanceled(ctx context.Context, b *models.Booking)
	ItemDeleted(ctx context.Context, item *models.Item, affected []models.Booking)
	ItemUnavailable(ctx context.Context, item *models.Item, affected []models.Booking)
	RatingReceived(ctx context.Context, r *models.Rating)
	RatingModified(ctx context.Context, r *models.Rating)
	BookingReminder(ctx context.Context, b *models.Booking)
	BookingOverdue(ctx context.Context, b *models.Booking)
}

// ObjectStore keeps uploaded files.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, bucket string, paths ...string) error
	PathFromURL(bucket, url string) (string, bool)
}

// IdentityProvider owns credentials. Local profiles share its user IDs.
type IdentityProvider interface {
	CreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error)
	DeleteUser(ctx context.Context, id string) error
	SignIn(ctx context.Context, email, password string) (*models.AuthSession, error)
}

// PushSender delivers one message to one device token.
type PushSender interface {
	Send(ctx context.Context, msg models.PushMessage) models.PushResult
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
