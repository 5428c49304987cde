package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

// RequireWebhookAuth accepts only "Authorization: Bearer <secret>". An empty
// secret rejects every request.
func RequireWebhookAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !univapay.VerifyWebhookAuthorization(c.Get(fiber.HeaderAuthorization), secret) {
			log.Warnf("[Webhook] rejected unauthenticated request from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized webhook"})
		}
		return c.Next()
	}
}
