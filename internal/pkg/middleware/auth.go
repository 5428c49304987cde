package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/security"
	icuser "github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

// RequireAPISessionAuth validates the bearer session token and stores the
// username for the handlers. Failures return JSON 401.
func RequireAPISessionAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(auth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid Authorization header"})
		}
		token := strings.TrimSpace(auth[len("Bearer "):])

		username, err := security.ParseSessionToken(token, secret, time.Now())
		if errors.Is(err, security.ErrTokenExpired) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token expired"})
		}
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}

		icuser.SetUser(c, username)
		return c.Next()
	}
}

// RequireLoggedIn guards handlers mounted behind RequireAPISessionAuth.
func RequireLoggedIn(c *fiber.Ctx) error {
	v := c.Locals(icuser.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing or invalid Authorization header"})
	}
	return c.Next()
}
