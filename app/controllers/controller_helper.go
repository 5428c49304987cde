package controllers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

// decodeJSONBody fills dst from the request body. A missing or malformed body
// leaves dst empty, so the field checks produce the error message.
func decodeJSONBody(c *fiber.Ctx, dst interface{}) {
	body := c.Body()
	if len(body) == 0 {
		return
	}
	if err := json.Unmarshal(body, dst); err != nil {
		log.Debugf("[API] ignoring malformed JSON body on %s: %v", c.Path(), err)
	}
}

// utcISO renders a timestamp as ISO-8601 in UTC with a "Z" suffix and
// microseconds only when present.
func utcISO(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format("2006-01-02T15:04:05Z")
	}
	return t.Format("2006-01-02T15:04:05.000000Z")
}

func paymentJSON(p *models.Payment) fiber.Map {
	return fiber.Map{
		"id":         p.ID,
		"user":       p.User,
		"kind":       p.Kind,
		"item_name":  p.ItemName,
		"amount_jpy": p.AmountJPY,
		"plan":       p.Plan,
		"created_at": utcISO(p.CreatedAt),
	}
}

func providerJSON(pp *models.ProviderPayment) interface{} {
	if pp == nil {
		return nil
	}
	return fiber.Map{
		"id":              pp.ID,
		"provider":        pp.Provider,
		"charge_id":       pp.ProviderChargeID,
		"subscription_id": pp.ProviderSubscriptionID,
		"status":          pp.Status,
		"currency":        pp.Currency,
		"created_at":      utcISO(pp.CreatedAt),
		"updated_at":      utcISO(pp.UpdatedAt),
	}
}

// parseAmount accepts a JSON number or a numeric string holding a whole
// number of yen.
func parseAmount(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// normalizeTransactionToken accepts the widget's token either as a string or
// as an object carrying id, token_id or univapayTokenId.
func normalizeTransactionToken(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		for _, key := range []string{"id", "token_id", "univapayTokenId"} {
			if s := scalarString(t[key]); s != "" {
				return s
			}
		}
		return ""
	default:
		return scalarString(t)
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// writeBillingError maps service errors to the JSON error contract. label
// names the gateway operation: charge, subscription, capture or cancel.
func writeBillingError(c *fiber.Ctx, err error, label string) error {
	var verr *billing.ValidationError
	var apiErr *univapay.APIError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Message})
	case errors.Is(err, billing.ErrGatewayUnavailable):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrPaymentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
	case errors.Is(err, billing.ErrNoProviderLink):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Payment is not linked to UnivaPay"})
	case errors.Is(err, univapay.ErrCircuitOpen):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "UnivaPay temporarily unavailable, try again later"})
	case errors.As(err, &apiErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "UnivaPay " + label + " failed",
			"detail": apiErrorDetail(apiErr),
			"status": apiErr.Status,
		})
	default:
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  unexpectedErrorMessage(label),
			"detail": err.Error(),
		})
	}
}

func apiErrorDetail(e *univapay.APIError) interface{} {
	if e.Body != nil {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func unexpectedErrorMessage(label string) string {
	switch label {
	case "charge", "subscription":
		return "Unexpected error creating " + label
	default:
		return "Unexpected error during " + label
	}
}
