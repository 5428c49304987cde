package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
)

type purchaseRequest struct {
	ItemName interface{} `json:"item_name"`
	Amount   interface{} `json:"amount"`
}

// HandlePurchase records a local product purchase.
func (a *API) HandlePurchase(c *fiber.Ctx) error {
	var in purchaseRequest
	decodeJSONBody(c, &in)

	itemName := scalarString(in.ItemName)
	if itemName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Item name is required"})
	}
	amount, ok := parseAmount(in.Amount)
	if !ok || amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be a positive integer (JPY)"})
	}

	p, err := a.billing.Purchase(c.UserContext(), usercontext.GetUsername(c), billing.PurchaseRequest{ItemName: itemName, Amount: amount})
	if err != nil {
		return writeBillingError(c, err, "purchase")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "payment": paymentJSON(p)})
}

type subscribeRequest struct {
	Plan interface{} `json:"plan"`
}

// HandleSubscribe records a local subscription at the catalog price.
func (a *API) HandleSubscribe(c *fiber.Ctx) error {
	var in subscribeRequest
	decodeJSONBody(c, &in)

	p, err := a.billing.Subscribe(c.UserContext(), usercontext.GetUsername(c), scalarString(in.Plan))
	if err != nil {
		return writeBillingError(c, err, "subscribe")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "payment": paymentJSON(p)})
}

// HandleListPayments lists the caller's payments, newest first.
func (a *API) HandleListPayments(c *fiber.Ctx) error {
	rows, err := a.billing.ListPayments(c.UserContext(), usercontext.GetUsername(c))
	if err != nil {
		return writeBillingError(c, err, "list")
	}

	out := make([]fiber.Map, 0, len(rows))
	for i := range rows {
		item := paymentJSON(&rows[i].Payment)
		item["provider"] = providerJSON(rows[i].Provider)
		out = append(out, item)
	}
	return c.JSON(fiber.Map{"payments": out})
}

type captureRequest struct {
	Amount interface{} `json:"amount"`
}

// HandleCapturePayment captures an authorized charge. Without an amount the
// full authorized amount is captured.
func (a *API) HandleCapturePayment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}
	var in captureRequest
	decodeJSONBody(c, &in)

	var amount int64
	if in.Amount != nil {
		n, ok := parseAmount(in.Amount)
		if !ok || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be a positive integer (JPY)"})
		}
		amount = n
	}

	pp, err := a.billing.CapturePayment(c.UserContext(), usercontext.GetUsername(c), uint(id), amount)
	if err != nil {
		return writeBillingError(c, err, "capture")
	}
	return c.JSON(fiber.Map{"ok": true, "provider": providerJSON(pp)})
}

type cancelRequest struct {
	Reason          interface{} `json:"reason"`
	TerminationMode interface{} `json:"termination_mode"`
}

// HandleCancelPayment cancels the charge or subscription behind a payment.
func (a *API) HandleCancelPayment(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}
	var in cancelRequest
	decodeJSONBody(c, &in)

	pp, err := a.billing.CancelPayment(c.UserContext(), usercontext.GetUsername(c), uint(id),
		scalarString(in.Reason),
		strings.ToLower(scalarString(in.TerminationMode)),
	)
	if err != nil {
		return writeBillingError(c, err, "cancel")
	}
	return c.JSON(fiber.Map{"ok": true, "provider": providerJSON(pp)})
}
