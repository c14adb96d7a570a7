package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// SessionTTL is the fixed lifetime of a session token.
	SessionTTL = 24 * time.Hour

	defaultIssuer = "estatecrm"
)

var errMissingSecret = errors.New("auth: signing secret is not configured")

// TokenPayload is the verified content of a session token.
type TokenPayload struct {
	UserID         string
	Email          string
	Roles          []Role
	OrganizationID string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

type sessionClaims struct {
	Email          string   `json:"email"`
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithTTL overrides the session lifetime (tests only; production uses SessionTTL).
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time source.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService requires a non-empty secret; there is no fallback.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	s := &TokenService{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    SessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL reports the configured session lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a session token for id.
func (s *TokenService) Issue(id Identity) (string, time.Time, error) {
	userID := strings.TrimSpace(id.ID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: identity id is required")
	}
	if len(id.Roles) == 0 {
		return "", time.Time{}, errors.New("auth: identity has no roles")
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		Email:          id.Email,
		Roles:          RoleStrings(dedupeRoles(id.Roles)),
		OrganizationID: id.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry. Every failure mode collapses
// into ErrInvalidToken.
func (s *TokenService) Verify(token string) (*TokenPayload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	roles := make([]Role, 0, len(claims.Roles))
	for _, raw := range claims.Roles {
		r := Role(raw)
		if !r.Valid() {
			return nil, ErrInvalidToken
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, ErrInvalidToken
	}
	return &TokenPayload{
		UserID:         claims.Subject,
		Email:          claims.Email,
		Roles:          dedupeRoles(roles),
		OrganizationID: claims.OrganizationID,
		IssuedAt:       claims.IssuedAt.Time,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}
