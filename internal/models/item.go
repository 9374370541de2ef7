package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	Title          string          `json:"title" db:"title"`
	Category       string          `json:"category" db:"category"`
	Description    string          `json:"description" db:"description"`
	EstimatedValue decimal.Decimal `json:"estimated_value" db:"estimated_value"`
	DepositAmount  decimal.Decimal `json:"deposit_amount" db:"deposit_amount"`
	StartDate      *Date           `json:"start_date" db:"start_date"`
	EndDate        *Date           `json:"end_date" db:"end_date"`
	Lat            *float64        `json:"lat" db:"lat"`
	Lng            *float64        `json:"lng" db:"lng"`
	IsAvailable    bool            `json:"is_available" db:"is_available"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

	OwnerUsername string      `json:"owner_username,omitempty" db:"owner_username"`
	Images        []ItemImage `json:"images" db:"-"`
}

type ItemImage struct {
	ID        string    `json:"id" db:"id"`
	ItemID    string    `json:"item_id" db:"item_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	Position  int       `json:"position" db:"position"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ItemUpdate carries a partial item change; nil fields are left alone.
type ItemUpdate struct {
	Title          *string          `json:"title"`
	Category       *string          `json:"category"`
	Description    *string          `json:"description"`
	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	DepositAmount  *decimal.Decimal `json:"deposit_amount"`
	StartDate      *Date            `json:"start_date"`
	EndDate        *Date            `json:"end_date"`
	Lat            *float64         `json:"lat"`
	Lng            *float64         `json:"lng"`
	IsAvailable    *bool            `json:"is_available"`
}

func (u *ItemUpdate) Apply(item *Item) {
	if u.Title != nil {
		item.Title = *u.Title
	}
	if u.Category != nil {
		item.Category = *u.Category
	}
	if u.Description != nil {
		item.Description = *u.Description
	}
	if u.EstimatedValue != nil {
		item.EstimatedValue = *u.EstimatedValue
	}
	if u.DepositAmount != nil {
		item.DepositAmount = *u.DepositAmount
	}
	if u.StartDate != nil {
		item.StartDate = u.StartDate
	}
	if u.EndDate != nil {
		item.EndDate = u.EndDate
	}
	if u.Lat != nil {
		item.Lat = u.Lat
	}
	if u.Lng != nil {
		item.Lng = u.Lng
	}
	if u.IsAvailable != nil {
		item.IsAvailable = *u.IsAvailable
	}
}

// ItemFilter narrows the browse feed.
type ItemFilter struct {
	ExcludeOwnerID string
	OwnerID        string
	Categories     []string
	Search         string
	Page           int
	PageSize       int
}

func (f *ItemFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	for _, c := range f.Categories {
		if c == "All" {
			f.Categories = nil
			break
		}
	}
}

func (f ItemFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// ItemDeletion is what a removed item leaves behind for follow-up work.
type ItemDeletion struct {
	Item *Item
	// Pending and accepted bookings that were cancelled by the removal.
	Bookings []Booking
	Images   []ItemImage
}

// ImageSync replaces an item's image set in one step.
type ImageSync struct {
	KeepIDs    []string    `json:"keep_ids"`
	RemoveURLs []string    `json:"remove_urls"`
	Add        []ItemImage `json:"add"`
}
