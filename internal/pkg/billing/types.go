package billing

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

// PurchaseRequest records a local product purchase without a gateway call.
type PurchaseRequest struct {
	ItemName string `validate:"required,max=255"`
	Amount   int64  `validate:"gt=0"`
}

// ChargeRequest is a one-time checkout paid with a widget transaction token.
type ChargeRequest struct {
	TransactionTokenID string `validate:"required,max=128"`
	ItemName           string `validate:"required,max=255"`
	Amount             int64  `validate:"gt=0"`
	ThreeDSMode        string `validate:"omitempty,max=16"`
	RedirectEndpoint   string `validate:"omitempty,max=2048"`
	// Capture defaults to true; false only authorizes the charge.
	Capture *bool
}

// SubscriptionRequest is a recurring checkout for one of the catalog plans.
type SubscriptionRequest struct {
	TransactionTokenID string `validate:"required,max=128"`
	Plan               string `validate:"required"`
	ThreeDSMode        string `validate:"omitempty,max=16"`
	RedirectEndpoint   string `validate:"omitempty,max=2048"`
}

// CheckoutResult is what a successful checkout persisted plus the gateway's
// response. Exactly one of Charge and Subscription is set.
type CheckoutResult struct {
	Payment      *models.Payment
	Provider     *models.ProviderPayment
	Charge       *univapay.Charge
	Subscription *univapay.Subscription
}

// PaymentWithProvider joins a payment with its provider record, if any.
type PaymentWithProvider struct {
	Payment  models.Payment
	Provider *models.ProviderPayment
}

// StatusUpdate is the input of the reconciler's single-row write. An empty
// Status keeps the stored one; a nil RawJSON keeps the stored snapshot.
type StatusUpdate struct {
	Status  string
	RawJSON *string
	Source  string
}

type PollKind string

const (
	PollKindCharge       PollKind = "charge"
	PollKindSubscription PollKind = "subscription"
)

// PollTask identifies one delayed provider status check.
type PollTask struct {
	ProviderPaymentID uint
	Kind              PollKind
	Attempt           int
}

// WebhookDelivery is one inbound webhook as received by the HTTP layer.
type WebhookDelivery struct {
	Body       []byte
	Headers    map[string]string
	ReceivedAt time.Time
}

// WebhookOutcome reports what a webhook delivery changed.
type WebhookOutcome struct {
	EventID           uint
	EventType         string
	Matched           string // "charge", "subscription" or ""
	ProviderPaymentID uint
}
