package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/identity"
	"selefli/internal/models"

	"github.com/rs/zerolog"
)

const minPasswordLength = 6

// AccountService registers and signs in users against the identity
// provider and keeps the local profile in step with it.
type AccountService struct {
	repo     domain.UserRepository
	provider domain.IdentityProvider
	users    *UserService
	logger   *zerolog.Logger
}

func NewAccountService(repo domain.UserRepository, provider domain.IdentityProvider, users *UserService, logger *zerolog.Logger) *AccountService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AccountService{repo: repo, provider: provider, users: users, logger: logger}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *models.User `json:"user"`
}

// Signup creates the provider account first and the local profile under the
// same ID. A failed local insert removes the provider account again.
func (s *AccountService) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := validateSignup(req); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, req); err != nil {
		return nil, err
	}

	id, err := s.provider.CreateUser(ctx, req.Email, req.Password, map[string]string{
		"username": req.Username,
		"phone":    req.Phone,
	})
	if err != nil {
		return nil, providerError(err)
	}

	user := &models.User{ID: id, Username: req.Username, Email: optional(req.Email), Phone: optional(req.Phone)}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if delErr := s.provider.DeleteUser(ctx, id); delErr != nil {
			s.logger.Error().Err(delErr).Str("user_id", id).Msg("failed to roll back identity after profile insert failed")
		}
		if errors.Is(err, database.ErrDuplicate) {
			return nil, invalid("", "A user with that username, email or phone already exists.")
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.logger.Info().Str("user_id", id).Str("username", user.Username).Msg("user registered")
	return user, nil
}

func validateSignup(req SignupRequest) error {
	switch {
	case req.Email == "":
		return invalid("email", "This field is required.")
	case req.Password == "":
		return invalid("password", "This field is required.")
	case req.Username == "":
		return invalid("username", "This field is required.")
	case req.Phone == "":
		return invalid("phone", "This field is required.")
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return invalid("email", "Enter a valid email address.")
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return invalid("password", "Ensure this field has at least 6 characters.")
	}
	if utf8.RuneCountInString(req.Username) > maxUsernameLength {
		return invalid("username", "Ensure this field has no more than 150 characters.")
	}
	if len(req.Phone) > 20 {
		return invalid("phone", "Ensure this field has no more than 20 characters.")
	}
	return nil
}

func (s *AccountService) checkUnique(ctx context.Context, req SignupRequest) error {
	checks := []struct {
		field   string
		lookup  func(context.Context, string) (*models.User, error)
		value   string
		message string
	}{
		{"email", s.repo.GetUserByEmail, req.Email, "A user with this email already exists."},
		{"phone", s.repo.GetUserByPhone, req.Phone, "A user with this phone number already exists."},
		{"username", s.repo.GetUserByUsername, req.Username, "A user with that username already exists."},
	}
	for _, c := range checks {
		_, err := c.lookup(ctx, c.value)
		switch {
		case err == nil:
			return invalid(c.field, c.message)
		case !errors.Is(err, database.ErrNotFound):
			return fmt.Errorf("check %s: %w", c.field, err)
		}
	}
	return nil
}

// Login signs in with the provider and returns its tokens together with the
// local profile, provisioning one if the account predates it.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, invalid("", "Email and password are required.")
	}

	session, err := s.provider.SignIn(ctx, email, req.Password)
	if err != nil {
		return nil, providerError(err)
	}

	user, err := s.users.Provision(ctx, Identity{
		UserID:   session.UserID,
		Email:    session.Email,
		Phone:    session.Phone,
		Username: session.Username,
	})
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		ExpiresAt:    session.ExpiresAt,
		User:         user,
	}, nil
}

func providerError(err error) error {
	var pe *identity.ProviderError
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return ErrUnauthenticated
	case errors.Is(err, identity.ErrNotConfigured):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.As(err, &pe) && pe.Status < 500 && pe.Status != 401 && pe.Status != 403:
		return invalid("", pe.Message)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
