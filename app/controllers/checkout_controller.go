package controllers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

type checkoutChargeRequest struct {
	TransactionTokenID interface{} `json:"transaction_token_id"`
	ItemName           interface{} `json:"item_name"`
	Amount             interface{} `json:"amount"`
	ThreeDSMode        interface{} `json:"three_ds_mode"`
	RedirectEndpoint   interface{} `json:"redirect_endpoint"`
	Capture            *bool       `json:"capture"`
}

// HandleCheckoutCharge charges a widget transaction token once.
func (a *API) HandleCheckoutCharge(c *fiber.Ctx) error {
	var in checkoutChargeRequest
	decodeJSONBody(c, &in)

	req := billing.ChargeRequest{
		TransactionTokenID: normalizeTransactionToken(in.TransactionTokenID),
		ItemName:           scalarString(in.ItemName),
		ThreeDSMode:        scalarString(in.ThreeDSMode),
		RedirectEndpoint:   scalarString(in.RedirectEndpoint),
		Capture:            in.Capture,
	}
	if amount, ok := parseAmount(in.Amount); ok {
		req.Amount = amount
	}

	res, err := a.billing.CheckoutCharge(c.UserContext(), usercontext.GetUsername(c), req)
	if err != nil {
		return writeBillingError(c, err, "charge")
	}

	redirect := json.RawMessage(`{}`)
	if len(res.Charge.Redirect) > 0 && string(res.Charge.Redirect) != "null" {
		redirect = res.Charge.Redirect
	} else if len(res.Charge.ThreeDS) > 0 && string(res.Charge.ThreeDS) != "null" {
		redirect = res.Charge.ThreeDS
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":      true,
		"payment": paymentJSON(res.Payment),
		"provider": fiber.Map{
			"id":        res.Provider.ID,
			"provider":  res.Provider.Provider,
			"charge_id": res.Provider.ProviderChargeID,
			"status":    res.Provider.Status,
		},
		"univapay": fiber.Map{
			"charge_id": nullableString(res.Charge.ID),
			"status":    nullableString(res.Charge.Status),
			"mode":      nullableString(res.Charge.Mode),
			"redirect":  redirect,
		},
	})
}

type checkoutSubscriptionRequest struct {
	TransactionTokenID interface{} `json:"transaction_token_id"`
	Plan               interface{} `json:"plan"`
	ThreeDSMode        interface{} `json:"three_ds_mode"`
	RedirectEndpoint   interface{} `json:"redirect_endpoint"`
}

// HandleCheckoutSubscription starts a recurring subscription for a plan.
func (a *API) HandleCheckoutSubscription(c *fiber.Ctx) error {
	var in checkoutSubscriptionRequest
	decodeJSONBody(c, &in)

	res, err := a.billing.CheckoutSubscription(c.UserContext(), usercontext.GetUsername(c), billing.SubscriptionRequest{
		TransactionTokenID: normalizeTransactionToken(in.TransactionTokenID),
		Plan:               scalarString(in.Plan),
		ThreeDSMode:        scalarString(in.ThreeDSMode),
		RedirectEndpoint:   scalarString(in.RedirectEndpoint),
	})
	if err != nil {
		return writeBillingError(c, err, "subscription")
	}

	var nextPayment interface{}
	if len(res.Subscription.NextPayment) > 0 {
		nextPayment = res.Subscription.NextPayment
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":      true,
		"payment": paymentJSON(res.Payment),
		"provider": fiber.Map{
			"id":              res.Provider.ID,
			"provider":        res.Provider.Provider,
			"subscription_id": res.Provider.ProviderSubscriptionID,
			"status":          res.Provider.Status,
		},
		"univapay": fiber.Map{
			"subscription_id": nullableString(res.Subscription.ID),
			"status":          nullableString(res.Subscription.Status),
			"mode":            nullableString(res.Subscription.Mode),
			"next_payment":    nextPayment,
		},
	})
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
