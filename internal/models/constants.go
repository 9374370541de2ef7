package models

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusAccepted  BookingStatus = "accepted"
	StatusActive    BookingStatus = "active"
	StatusCompleted BookingStatus = "completed"
	StatusDeclined  BookingStatus = "declined"
	StatusClosed    BookingStatus = "closed"
)

// NonTerminalStatuses hold an item's calendar and count towards the
// one-open-booking-per-borrower rule.
var NonTerminalStatuses = []BookingStatus{StatusPending, StatusAccepted, StatusActive}

func (s BookingStatus) IsNonTerminal() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusActive:
		return true
	default:
		return false
	}
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusActive, StatusCompleted, StatusDeclined, StatusClosed:
		return true
	default:
		return false
	}
}

type DepositStatus string

const (
	DepositNone     DepositStatus = "none"
	DepositReceived DepositStatus = "received"
	DepositReturned DepositStatus = "returned"
	DepositKept     DepositStatus = "kept"
)

type NotificationType string

const (
	NotificationBookingCreated     NotificationType = "booking_created"
	NotificationBookingCanceled    NotificationType = "booking_canceled"
	NotificationBookingAccepted    NotificationType = "booking_accepted"
	NotificationBookingDeclined    NotificationType = "booking_declined"
	NotificationBookingExpired     NotificationType = "booking_expired"
	NotificationItemUnavailable    NotificationType = "item_unavailable"
	NotificationItemDeleted        NotificationType = "item_deleted"
	NotificationBookingStarted     NotificationType = "booking_started"
	NotificationBookingCompleted   NotificationType = "booking_completed"
	NotificationBookingOverdue     NotificationType = "booking_overdue"
	NotificationItemReturned       NotificationType = "item_returned"
	NotificationRatingReceived     NotificationType = "rating_received"
	NotificationRatingModified     NotificationType = "rating_modified"
	NotificationDepositRequired    NotificationType = "deposit_required"
	NotificationDepositPaid        NotificationType = "deposit_paid"
	NotificationDepositHeld        NotificationType = "deposit_held"
	NotificationDepositReleased    NotificationType = "deposit_released"
	NotificationBookingReminder    NotificationType = "booking_reminder"
	NotificationSystemAnnouncement NotificationType = "system_announcement"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationBookingCreated:     {},
	NotificationBookingCanceled:    {},
	NotificationBookingAccepted:    {},
	NotificationBookingDeclined:    {},
	NotificationBookingExpired:     {},
	NotificationItemUnavailable:    {},
	NotificationItemDeleted:        {},
	NotificationBookingStarted:     {},
	NotificationBookingCompleted:   {},
	NotificationBookingOverdue:     {},
	NotificationItemReturned:       {},
	NotificationRatingReceived:     {},
	NotificationRatingModified:     {},
	NotificationDepositRequired:    {},
	NotificationDepositPaid:        {},
	NotificationDepositHeld:        {},
	NotificationDepositReleased:    {},
	NotificationBookingReminder:    {},
	NotificationSystemAnnouncement: {},
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

type DeviceType string

const (
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceWeb     DeviceType = "web"
)

func (d DeviceType) Valid() bool {
	switch d {
	case DeviceAndroid, DeviceIOS, DeviceWeb:
		return true
	default:
		return false
	}
}

const (
	// MaxItemImages is the number of photo slots per item.
	MaxItemImages = 3

	// BookingCodePrefix starts every human-readable booking reference.
	BookingCodePrefix = "SF-"

	DefaultPageSize = 20
	MaxPageSize     = 100
)
