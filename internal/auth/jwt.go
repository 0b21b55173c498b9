// Package auth provides the credential, token and cookie primitives used by
// the authentication service.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User registers (POST /users/) or signs in (POST /users/sign-in/)
//  2. Server verifies or hashes the password (password.go)
//  3. Server issues a signed JWT whose "sub" is the user's string id (this file)
//  4. The JWT travels in an HttpOnly cookie (cookie.go)
//  5. GET /users/me/ reads the cookie, validates the JWT and loads the user
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims (data) → {"sub":"userID","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// Tokens are never stored server-side. Expiry is the only way a session ends.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when Issue is called with a non-positive ttl.
const DefaultTokenTTL = 15 * time.Minute

// MinSecretLength is the shortest HMAC secret NewTokenService accepts.
const MinSecretLength = 16

const tokenIssuer = "todo-auth"

// Validate failure kinds. Callers must treat all three the same way.
var (
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenSignature = errors.New("auth: token signature invalid")
	ErrTokenExpired   = errors.New("auth: token expired")
)

// SecretSource supplies the HMAC key. StaticSecret is the only
// implementation today; a rotating source can satisfy the same interface.
type SecretSource interface {
	SigningSecret() []byte
}

// StaticSecret is a fixed key loaded once at startup.
type StaticSecret []byte

func (s StaticSecret) SigningSecret() []byte { return s }

// Claims is the decoded token payload.
type Claims struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedToken is a signed token plus the instants it was derived from.
// The cookie lifetime is computed from the same values, so the token and
// the cookie expire together.
type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL is the token lifetime rounded to whole seconds.
func (t IssuedToken) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret SecretSource
	now    func() time.Time
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now. Tests use it to move past a token's expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret SecretSource, opts ...TokenOption) (*TokenService, error) {
	if secret == nil || len(secret.SigningSecret()) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	s := &TokenService{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// registeredClaims is the JWT payload on the wire.
type registeredClaims struct {
	jwt.RegisteredClaims
}

// Issue signs a token for claims.Subject that expires ttl from now.
// A ttl of zero or less means DefaultTokenTTL. Any ExpiresAt, IssuedAt or ID
// already set on claims is ignored.
//
// NumericDate has one-second precision, so both instants are truncated to
// the second before signing. What Validate returns is exactly what was signed.
func (s *TokenService) Issue(claims Claims, ttl time.Duration) (IssuedToken, error) {
	if claims.Subject == "" {
		return IssuedToken{}, errors.New("auth: token subject must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := s.now().Truncate(time.Second)
	exp := now.Add(ttl).Truncate(time.Second)

	c := registeredClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret.SigningSecret())
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return IssuedToken{Value: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Algorithm is HS256 (prevents algorithm confusion attacks, including "none")
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future, per the injected clock)
//   - Issuer matches (prevents tokens minted for other apps with the same key)
//
// The returned error wraps exactly one of ErrTokenMalformed,
// ErrTokenSignature or ErrTokenExpired.
func (s *TokenService) Validate(tokenStr string) (Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&registeredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret.SigningSecret(), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}

	c, ok := token.Claims.(*registeredClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrTokenMalformed
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	out := Claims{Subject: c.Subject, ID: c.ID}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		// wrong issuer, missing exp, not-yet-valid
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
