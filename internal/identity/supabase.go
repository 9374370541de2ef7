package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"selefli/internal/config"
	"selefli/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrNotConfigured      = errors.New("identity provider is not configured")
	ErrInvalidCredentials = errors.New("invalid login credentials")
)

// ProviderError is a rejection returned by the auth API.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider returned %d: %s", e.Status, e.Message)
}

// SupabaseAuth talks to the Supabase auth (GoTrue) REST API with the
// service role key.
type SupabaseAuth struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewSupabaseAuth(cfg config.IdentityConfig, logger *zerolog.Logger) *SupabaseAuth {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SupabaseAuth{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (a *SupabaseAuth) configured() bool {
	return a.baseURL != "" && a.serviceKey != ""
}

type authUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// CreateUser registers a confirmed account and returns its ID.
func (a *SupabaseAuth) CreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error) {
	if !a.configured() {
		return "", ErrNotConfigured
	}
	payload := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": metadata,
	}
	var created authUser
	if err := a.call(ctx, http.MethodPost, "/auth/v1/admin/users", payload, &created); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("create user: provider returned no user id")
	}
	a.logger.Debug().Str("user_id", created.ID).Msg("identity created")
	return created.ID, nil
}

func (a *SupabaseAuth) DeleteUser(ctx context.Context, id string) error {
	if !a.configured() {
		return ErrNotConfigured
	}
	if err := a.call(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

// SignIn exchanges an email and password for a session.
func (a *SupabaseAuth) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if !a.configured() {
		return nil, ErrNotConfigured
	}
	var resp struct {
		AccessToken  string   `json:"access_token"`
		RefreshToken string   `json:"refresh_token"`
		TokenType    string   `json:"token_type"`
		ExpiresIn    int64    `json:"expires_in"`
		ExpiresAt    int64    `json:"expires_at"`
		User         authUser `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	err := a.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", body, &resp)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && (pe.Status == http.StatusBadRequest || pe.Status == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, pe.Message)
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, errors.New("sign in: provider returned no session")
	}
	if resp.ExpiresAt == 0 && resp.ExpiresIn > 0 {
		resp.ExpiresAt = time.Now().Unix() + resp.ExpiresIn
	}

	session := &models.AuthSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		ExpiresAt:    resp.ExpiresAt,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		Phone:        resp.User.Phone,
	}
	if name, ok := resp.User.UserMetadata["username"].(string); ok {
		session.Username = name
	}
	if session.Phone == "" {
		if phone, ok := resp.User.UserMetadata["phone"].(string); ok {
			session.Phone = phone
		}
	}
	return session, nil
}

func (a *SupabaseAuth) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("apikey", a.serviceKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return parseError(resp.StatusCode, raw)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError reads both the legacy {error, error_description} shape and the
// newer {error_code, msg} one.
func parseError(status int, raw []byte) *ProviderError {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	pe := &ProviderError{Status: status}
	if json.Unmarshal(raw, &body) != nil {
		pe.Message = strings.TrimSpace(string(raw))
		return pe
	}
	pe.Code = firstNonEmpty(body.ErrorCode, body.Error)
	pe.Message = firstNonEmpty(body.Msg, body.ErrorDescription, body.Message, body.Error)
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(raw))
	}
	return pe
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
