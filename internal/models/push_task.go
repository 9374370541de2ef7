package models

import "time"

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// PushTask is a queued push delivery for one notification.
type PushTask struct {
	ID             string     `json:"id" db:"id"`
	NotificationID string     `json:"notification_id" db:"notification_id"`
	Status         string     `json:"status" db:"status"`
	RetryCount     int        `json:"retry_count" db:"retry_count"`
	LastError      *string    `json:"last_error" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at" db:"processed_at"`
	NextRetryAt    *time.Time `json:"next_retry_at" db:"next_retry_at"`
}

// PushMessage is one gateway call for one device token.
type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type PushOutcome string

const (
	PushDelivered    PushOutcome = "delivered"
	PushInvalidToken PushOutcome = "invalid_token"
	PushFailed       PushOutcome = "failed"
)

type PushResult struct {
	Outcome PushOutcome
	Err     error
}
