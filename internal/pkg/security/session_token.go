package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const (
	SessionTokenTTL  = 12 * time.Hour
	defaultSecretKey = "dev-secret"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// SessionClaims identify the logged-in user by username in "sub".
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SecretKey returns the HS256 signing key.
func SecretKey() string {
	return env.GetEnv("SECRET_KEY", defaultSecretKey)
}

// IssueSessionToken signs an HS256 token for username, valid for SessionTokenTTL.
func IssueSessionToken(username, secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token generation")
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken verifies token and returns its subject. Expired tokens
// yield ErrTokenExpired, everything else ErrTokenInvalid.
func ParseSessionToken(token, secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token verification")
	}
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrTokenExpired
	}
	if err != nil || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
