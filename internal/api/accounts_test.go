package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"selefli/internal/auth"
	"selefli/internal/identity"
	"selefli/internal/models"
	"selefli/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	id       string
	password string
	metadata map[string]string
}

// fakeIdentity issues tokens the test server's verifier accepts.
type fakeIdentity struct {
	mu       sync.Mutex
	verifier *auth.Verifier
	accounts map[string]fakeAccount
}

func newFakeIdentity(verifier *auth.Verifier) *fakeIdentity {
	return &fakeIdentity{verifier: verifier, accounts: map[string]fakeAccount{}}
}

func (f *fakeIdentity) CreateUser(_ context.Context, email, password string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return "", &identity.ProviderError{Status: http.StatusUnprocessableEntity, Code: "email_exists",
			Message: "A user with this email address has already been registered"}
	}
	id := uuid.NewString()
	f.accounts[email] = fakeAccount{id: id, password: password, metadata: metadata}
	return id, nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, acc := range f.accounts {
		if acc.id == id {
			delete(f.accounts, email)
		}
	}
	return nil
}

func (f *fakeIdentity) SignIn(_ context.Context, email, password string) (*models.AuthSession, error) {
	f.mu.Lock()
	acc, ok := f.accounts[email]
	f.mu.Unlock()
	if !ok || acc.password != password {
		return nil, fmt.Errorf("%w: Invalid login credentials", identity.ErrInvalidCredentials)
	}
	who := service.Identity{UserID: acc.id, Email: email, Username: acc.metadata["username"]}
	token, err := f.verifier.Issue(who, time.Hour)
	if err != nil {
		return nil, err
	}
	return &models.AuthSession{
		AccessToken:  token,
		RefreshToken: "refresh-" + acc.id,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		UserID:       acc.id,
		Email:        email,
		Username:     who.Username,
	}, nil
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t, testConfig())
	anon := &client{t: t, env: env}

	resp, body := anon.do(http.MethodPost, "/api/users/signup/", map[string]any{
		"email":    "amina@example.com",
		"password": "secret1",
		"username": "amina",
		"phone":    "+213555000111",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	userID := body["id"].(string)
	assert.Equal(t, "amina", body["username"])
	assert.Equal(t, "amina@example.com", body["email"])

	resp, body = anon.do(http.MethodPost, "/api/users/login/", map[string]any{
		"email": "amina@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, service.ErrUnauthenticated.Error(), body["error"])

	resp, body = anon.do(http.MethodPost, "/api/users/login", map[string]any{
		"email": "amina@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "refresh-"+userID, body["refresh_token"])
	assert.Equal(t, float64(3600), body["expires_in"])
	assert.NotZero(t, body["expires_at"])
	user := body["user"].(map[string]any)
	assert.Equal(t, userID, user["id"])
	assert.Equal(t, "amina", user["username"])

	// The issued access token works against the authenticated API.
	amina := &client{t: t, env: env, id: userID, token: body["access_token"].(string)}
	resp, body = amina.do(http.MethodGet, "/api/users/me/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, userID, body["id"])

	count, err := env.db.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	anon := &client{t: t, env: env}
	resp, body := anon.do(http.MethodPost, "/api/users/signup/", map[string]any{
		"email": "amina@example.com", "password": "secret1", "username": "amina", "phone": "+213555000111",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	cases := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing phone", map[string]any{"email": "b@example.com", "password": "secret1", "username": "b"}, "phone"},
		{"short password", map[string]any{"email": "b@example.com", "password": "abc", "username": "b", "phone": "1"}, "password"},
		{"bad email", map[string]any{"email": "not-an-email", "password": "secret1", "username": "b", "phone": "1"}, "email"},
		{"taken username", map[string]any{"email": "b@example.com", "password": "secret1", "username": "amina", "phone": "1"}, "username"},
		{"taken email", map[string]any{"email": "amina@example.com", "password": "secret1", "username": "b", "phone": "1"}, "email"},
		{"taken phone", map[string]any{"email": "b@example.com", "password": "secret1", "username": "b", "phone": "+213555000111"}, "phone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := (&client{t: t, env: env}).do(http.MethodPost, "/api/users/signup/", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, body["fields"], tc.field)
		})
	}

	resp, _ = anon.do(http.MethodPost, "/api/users/signup/", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginProvisionsMissingProfile(t *testing.T) {
	env := newTestEnv(t, testConfig())
	id, err := env.accounts.CreateUser(context.Background(), "old@example.com", "secret1", map[string]string{"username": "oldtimer"})
	require.NoError(t, err)

	resp, body := (&client{t: t, env: env}).do(http.MethodPost, "/api/users/login/", map[string]any{
		"email": "old@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, id, user["id"])
	assert.Equal(t, "oldtimer", user["username"])

	stored, err := env.db.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "oldtimer", stored.Username)
}
