package security

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// Credentials is the single demo account allowed to log in.
type Credentials struct {
	Username string
	// PasswordHash is a bcrypt hash. When empty, Password is compared as-is.
	PasswordHash string
	Password     string
}

// CredentialsFromEnv reads AUTH_USERNAME, AUTH_PASSWORD_BCRYPT and AUTH_PASSWORD.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Username:     env.GetEnv("AUTH_USERNAME", "Nayeem"),
		PasswordHash: strings.TrimSpace(env.GetEnv("AUTH_PASSWORD_BCRYPT", "")),
		Password:     env.GetEnv("AUTH_PASSWORD", "password"),
	}
}

// Check reports whether username and password match the account.
func (c Credentials) Check(username, password string) bool {
	if username == "" || subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) != 1 {
		return false
	}
	if c.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	}
	return c.Password != "" && subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
}
