package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/imaging"
	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxUsernameLength = 150

// Identity is what a verified access token says about its bearer.
type Identity struct {
	UserID   string
	Email    string
	Phone    string
	Username string
}

type UserService struct {
	repo         domain.UserRepository
	store        domain.ObjectStore
	avatarBucket string
	logger       *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, store domain.ObjectStore, avatarBucket string, logger *zerolog.Logger) *UserService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{repo: repo, store: store, avatarBucket: avatarBucket, logger: logger}
}

// Provision returns the user behind a verified token, creating the profile
// on first sight.
func (s *UserService) Provision(ctx context.Context, id Identity) (*models.User, error) {
	if id.UserID == "" {
		return nil, invalid("sub", "User ID not found in token")
	}
	user, err := s.repo.GetUserByID(ctx, id.UserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	for i, candidate := range provisionCandidates(id) {
		user = &models.User{ID: id.UserID, Username: candidate}
		// The last attempt drops contact details that may belong to an older account.
		if i < 2 {
			user.Email = optional(id.Email)
			user.Phone = optional(id.Phone)
		}
		err = s.repo.CreateUser(ctx, user)
		if err == nil {
			s.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user provisioned")
			return user, nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, fmt.Errorf("provision user: %w", err)
		}
		// A concurrent request may have created the same user.
		if existing, getErr := s.repo.GetUserByID(ctx, id.UserID); getErr == nil {
			return existing, nil
		}
	}
	return nil, conflict("could not provision a profile for user %s", id.UserID)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func provisionCandidates(id Identity) []string {
	fallback := "user_" + shortID(id.UserID)
	base := strings.TrimSpace(id.Username)
	if base == "" {
		base = strings.TrimSpace(id.Email)
	}
	if base == "" {
		base = fallback
	}
	// Room for the "_" + short id suffix of the second candidate.
	if runes := []rune(base); len(runes) > maxUsernameLength-9 {
		base = string(runes[:maxUsernameLength-9])
	}
	return []string{
		base,
		base + "_" + shortID(id.UserID),
		"user_" + strings.ReplaceAll(id.UserID, "-", ""),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return u, nil
}

// UpdateProfile changes the actor's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, actorID, id string, upd models.UserUpdate) (*models.User, error) {
	if actorID != id {
		return nil, ErrForbidden
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		switch {
		case name == "":
			return nil, invalid("username", "This field may not be blank.")
		case utf8.RuneCountInString(name) > maxUsernameLength:
			return nil, invalid("username", "Ensure this field has no more than 150 characters.")
		}
		upd.Username = &name
		if other, err := s.repo.GetUserByUsername(ctx, name); err == nil && other.ID != id {
			return nil, invalid("username", "A user with that username already exists.")
		}
	}
	if upd.Phone != nil && len(*upd.Phone) > 20 {
		return nil, invalid("phone", "Ensure this field has no more than 20 characters.")
	}
	if upd.Email != nil && *upd.Email != "" && !strings.Contains(*upd.Email, "@") {
		return nil, invalid("email", "Enter a valid email address.")
	}

	user, err := s.repo.UpdateUser(ctx, id, upd)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, invalid("", "A user with that username, email or phone already exists.")
		}
		return nil, storageError(err)
	}
	return user, nil
}

// UserPage is one page of the public directory.
type UserPage struct {
	Count   int                 `json:"count"`
	Results []models.PublicUser `json:"results"`
}

func (s *UserService) List(ctx context.Context, page, pageSize int) (*UserPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	users, err := s.repo.ListUsers(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := &UserPage{Count: total, Results: make([]models.PublicUser, 0, len(users))}
	for i := range users {
		out.Results = append(out.Results, users[i].Public())
	}
	return out, nil
}

type AverageRating struct {
	UserID        string  `json:"user_id"`
	AverageRating float64 `json:"average_rating"`
	RatingSum     int64   `json:"rating_sum"`
	RatingCount   int64   `json:"rating_count"`
}

func (s *UserService) AverageRating(ctx context.Context, userID string) (*AverageRating, error) {
	agg, err := s.repo.RatingAggregate(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	u := models.User{RatingSum: agg.RatingSum, RatingCount: agg.RatingCount}
	return &AverageRating{
		UserID:        userID,
		AverageRating: u.AverageRating(),
		RatingSum:     agg.RatingSum,
		RatingCount:   agg.RatingCount,
	}, nil
}

// UploadAvatar stores a normalized avatar for the actor and replaces the
// previous one.
func (s *UserService) UploadAvatar(ctx context.Context, actorID, id string, data []byte) (*models.User, error) {
	if actorID != id {
		return nil, ErrForbidden
	}
	if len(data) == 0 {
		return nil, invalid("avatar", "Avatar file required (field name: 'avatar')")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	normalized, err := imaging.Normalize(data)
	if err != nil {
		return nil, invalid("avatar", "Upload a JPEG, PNG or WebP image.")
	}
	objectPath := fmt.Sprintf("%s/%s.jpg", id, uuid.NewString())
	url, err := s.store.Upload(ctx, s.avatarBucket, objectPath, imaging.ContentType, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}

	user, err := s.repo.UpdateUser(ctx, id, models.UserUpdate{AvatarURL: &url})
	if err != nil {
		return nil, storageError(err)
	}
	if current.AvatarURL != nil {
		if old, ok := s.store.PathFromURL(s.avatarBucket, *current.AvatarURL); ok {
			if err := s.store.Remove(ctx, s.avatarBucket, old); err != nil {
				s.logger.Warn().Err(err).Str("path", old).Msg("failed to remove previous avatar")
			}
		}
	}
	return user, nil
}
