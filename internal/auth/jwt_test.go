package auth

import (
	"testing"
	"time"

	"selefli/internal/config"
	"selefli/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier() *Verifier {
	return NewVerifier(config.APIAuthConfig{Enabled: true, JWTSecret: "test-secret", Audience: "authenticated"})
}

func TestIssueAndVerify(t *testing.T) {
	v := newVerifier()
	token, err := v.Issue(service.Identity{UserID: "u-1", Email: "kim@example.com", Username: "kim"}, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, "u-1", id.UserID)
	assert.Equal(t, "kim@example.com", id.Email)
	assert.Equal(t, "kim", id.Username)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier()
	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "u-1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongAud := valid
	wrongAud.Audience = jwt.ClaimStrings{"anon"}
	noSubject := valid
	noSubject.Subject = ""
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"wrong secret":   sign(valid, jwt.SigningMethodHS256, []byte("other")),
		"wrong method":   sign(valid, jwt.SigningMethodHS512, []byte("test-secret")),
		"expired":        sign(expired, jwt.SigningMethodHS256, []byte("test-secret")),
		"wrong audience": sign(wrongAud, jwt.SigningMethodHS256, []byte("test-secret")),
		"no subject":     sign(noSubject, jwt.SigningMethodHS256, []byte("test-secret")),
		"no expiry":      sign(noExpiry, jwt.SigningMethodHS256, []byte("test-secret")),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.Error(t, err)
		})
	}

	_, err := v.Verify(sign(valid, jwt.SigningMethodHS256, []byte("test-secret")))
	assert.NoError(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = BearerToken("bearer   xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = BearerToken("Basic abc")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = BearerToken("Bearer")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
