package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role selects which signing secret a token is bound to.
type Role string

const (
	RoleAccess  Role = "access"
	RoleRefresh Role = "refresh"
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")

	ErrUnknownRole = errors.New("unknown token role")
	ErrWeakSecrets = errors.New("access and refresh secrets must be set and distinct")
)

// Payload is what a token carries. Refresh tokens leave UserID empty.
type Payload struct {
	UserID    string
	SessionID string
}

type Claims struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 tokens with one secret per Role.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secrets map[Role][]byte
	now     func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock replaces time.Now for both minting and validation.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

func NewTokenCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*TokenCodec, error) {
	if accessSecret == "" || refreshSecret == "" || accessSecret == refreshSecret {
		return nil, ErrWeakSecrets
	}

	c := &TokenCodec{
		secrets: map[Role][]byte{
			RoleAccess:  []byte(accessSecret),
			RoleRefresh: []byte(refreshSecret),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *TokenCodec) Sign(payload Payload, role Role, ttl time.Duration) (string, error) {
	const op = "auth.Sign"

	key, ok := c.secrets[role]
	if !ok {
		return "", fmt.Errorf("%s: %w: %q", op, ErrUnknownRole, role)
	}

	issuedAt := c.now()
	claims := &Claims{
		UserID:    payload.UserID,
		SessionID: payload.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify checks signature and expiry. Failures are ErrMalformed,
// ErrSignatureInvalid or ErrExpired.
func (c *TokenCodec) Verify(tokenStr string, role Role) (Payload, error) {
	key, ok := c.secrets[role]
	if !ok {
		return Payload{}, ErrUnknownRole
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return Payload{}, classify(err)
	}
	if !token.Valid || claims.SessionID == "" {
		return Payload{}, ErrMalformed
	}

	return Payload{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
