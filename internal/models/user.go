package models

import "time"

type User struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	Email       *string   `json:"email" db:"email"`
	Phone       *string   `json:"phone" db:"phone"`
	AvatarURL   *string   `json:"avatar_url" db:"avatar_url"`
	RatingSum   int64     `json:"rating_sum" db:"rating_sum"`
	RatingCount int64     `json:"rating_count" db:"rating_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// AverageRating is rating_sum / rating_count, or 0 for users nobody rated yet.
func (u *User) AverageRating() float64 {
	if u.RatingCount == 0 {
		return 0
	}
	return float64(u.RatingSum) / float64(u.RatingCount)
}

// PublicUser is the profile shape shown to other users.
type PublicUser struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	AvatarURL     *string `json:"avatar_url"`
	RatingCount   int64   `json:"rating_count"`
	AverageRating float64 `json:"average_rating"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		AvatarURL:     u.AvatarURL,
		RatingCount:   u.RatingCount,
		AverageRating: u.AverageRating(),
	}
}

// UserUpdate carries a partial profile change; nil fields are left alone.
type UserUpdate struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
}

// AuthSession is a signed-in session issued by the identity provider.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	UserID       string `json:"-"`
	Email        string `json:"-"`
	Phone        string `json:"-"`
	Username     string `json:"-"`
}
