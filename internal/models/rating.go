package models

import "time"

const (
	MinStars = 1
	MaxStars = 5
)

type Rating struct {
	ID           string    `json:"id" db:"id"`
	BookingID    string    `json:"booking_id" db:"booking_id"`
	RaterID      string    `json:"rater_id" db:"rater_id"`
	TargetUserID string    `json:"target_user_id" db:"target_user_id"`
	Stars        int       `json:"stars" db:"stars"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type RatingFilter struct {
	TargetUserID string
	RaterID      string
	BookingID    string
}

// RatingAggregate mirrors the denormalized columns on users.
type RatingAggregate struct {
	UserID      string `json:"user_id"`
	RatingSum   int64  `json:"rating_sum"`
	RatingCount int64  `json:"rating_count"`
}
