package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
)

// HandleUnivapayWebhook stores and applies an authenticated UnivaPay webhook.
// It always acknowledges with 200 so the gateway does not redeliver.
func (a *API) HandleUnivapayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)

	headers := make(map[string]string)
	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	out, err := a.billing.Reconciler().HandleWebhook(c.UserContext(), billing.WebhookDelivery{
		Body:       rawBody,
		Headers:    headers,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Errorf("[Webhook] %v", err)
		return c.JSON(fiber.Map{"ok": true})
	}
	log.Debugf("[Webhook] event_id=%d type=%q matched=%q", out.EventID, out.EventType, out.Matched)
	return c.JSON(fiber.Map{"ok": true})
}
