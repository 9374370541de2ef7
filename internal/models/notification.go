package models

import "time"

type Notification struct {
	ID             string           `json:"id" db:"id"`
	RecipientID    string           `json:"recipient_id" db:"recipient_id"`
	Type           NotificationType `json:"notification_type" db:"notification_type"`
	Title          string           `json:"title" db:"title"`
	Body           string           `json:"body" db:"body"`
	Payload        Payload          `json:"payload" db:"payload"`
	IsRead         bool             `json:"is_read" db:"is_read"`
	ReadAt         *time.Time       `json:"read_at" db:"read_at"`
	PushSent       bool             `json:"push_sent" db:"push_sent"`
	PushSentAt     *time.Time       `json:"push_sent_at" db:"push_sent_at"`
	IdempotencyKey *string          `json:"-" db:"idempotency_key"`
	DeletedAt      *time.Time       `json:"-" db:"deleted_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// NotificationRequest is the input of the dispatcher.
type NotificationRequest struct {
	RecipientID    string
	Type           NotificationType
	Title          string
	Body           string
	Payload        Payload
	IdempotencyKey string
	SendPush       bool
}

type UserDevice struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	FCMToken   string     `json:"fcm_token" db:"fcm_token"`
	DeviceType DeviceType `json:"device_type" db:"device_type"`
	DeviceName string     `json:"device_name" db:"device_name"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
