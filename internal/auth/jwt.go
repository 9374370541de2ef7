package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"selefli/internal/config"
	"selefli/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authentication credentials were not provided")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the subset of an identity provider access token the API reads.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Identity flattens the claims into what user provisioning needs.
func (c *Claims) Identity() service.Identity {
	id := service.Identity{UserID: c.Subject, Email: c.Email, Phone: c.Phone}
	if name, ok := c.UserMetadata["username"].(string); ok {
		id.Username = strings.TrimSpace(name)
	}
	return id
}

// Verifier checks HS256 access tokens signed with the project secret.
type Verifier struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

func NewVerifier(cfg config.APIAuthConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		audience: cfg.Audience,
		parser:   jwt.NewParser(opts...),
	}
}

// Verify parses tokenStr and returns its claims.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if header == "" {
		return "", ErrMissingToken
	}
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// Issue signs a token for id that the verifier accepts. Used by local
// tooling and tests; production tokens come from the identity provider.
func (v *Verifier) Issue(id service.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Phone: id.Phone,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	if id.Username != "" {
		claims.UserMetadata = map[string]any{"username": id.Username}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
