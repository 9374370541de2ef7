package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID            string              `json:"id" db:"id"`
	ItemID        string              `json:"item_id" db:"item_id"`
	OwnerID       string              `json:"owner_id" db:"owner_id"`
	BorrowerID    string              `json:"borrower_id" db:"borrower_id"`
	Status        BookingStatus       `json:"status" db:"status"`
	DepositStatus DepositStatus       `json:"deposit_status" db:"deposit_status"`
	BookingCode   *string             `json:"booking_code" db:"booking_code"`
	StartDate     Date                `json:"start_date" db:"start_date"`
	ReturnByDate  Date                `json:"return_by_date" db:"return_by_date"`
	TotalCost     decimal.NullDecimal `json:"total_cost" db:"total_cost"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
	Version       int64               `json:"version" db:"version"`

	ItemTitle        string  `json:"item_title,omitempty" db:"item_title"`
	OwnerUsername    string  `json:"owner_username,omitempty" db:"owner_username"`
	BorrowerUsername string  `json:"borrower_username,omitempty" db:"borrower_username"`
	ImageURL         *string `json:"image_url" db:"image_url"`
}

func (b *Booking) IsParticipant(userID string) bool {
	return userID != "" && (b.OwnerID == userID || b.BorrowerID == userID)
}

// Overlaps reports whether the half-open ranges [start, end) intersect.
func (b *Booking) Overlaps(start, end Date) bool {
	return b.StartDate.Before(end.Time) && b.ReturnByDate.After(start.Time)
}

// BookingTransition is the target state of a single guarded update.
type BookingTransition struct {
	FromStatus        BookingStatus
	FromDepositStatus DepositStatus
	Status            BookingStatus
	DepositStatus     DepositStatus
	// Code is assigned only when the booking has none yet.
	Code *string
}

// UserTransaction is a booking seen from one participant's side.
type UserTransaction struct {
	Booking
	IsBorrower bool `json:"is_borrower"`
}
