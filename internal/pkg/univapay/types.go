package univapay

import "encoding/json"

// ChargeParams describes a one-time charge created from a widget token.
type ChargeParams struct {
	TransactionTokenID string
	Amount             int64
	Currency           string
	Capture            *bool
	CaptureAt          string // ISO-8601, delayed capture when Capture is false
	Metadata           map[string]any
	ThreeDSMode        string // normal | require | force | skip
	RedirectEndpoint   string
	IdempotencyKey     string
}

// SubscriptionParams describes a recurring charge. Exactly one of Period and
// CyclicalPeriod must be set.
type SubscriptionParams struct {
	TransactionTokenID string
	Amount             int64
	Currency           string
	Period             string // monthly, semiannually, ...
	CyclicalPeriod     string // ISO-8601 duration, e.g. P2M
	StartOn            string // YYYY-MM-DD
	ZoneID             string
	Metadata           map[string]any
	ThreeDSMode        string
	RedirectEndpoint   string
	IdempotencyKey     string
}

// Charge is the subset of the charge resource the backend reads. Raw keeps the
// full response body for auditing.
type Charge struct {
	ID                string          `json:"id"`
	StoreID           string          `json:"store_id"`
	Status            string          `json:"status"`
	Mode              string          `json:"mode"`
	RequestedAmount   int64           `json:"requested_amount"`
	RequestedCurrency string          `json:"requested_currency"`
	ChargedAmount     *int64          `json:"charged_amount"`
	ChargedCurrency   string          `json:"charged_currency"`
	Redirect          json.RawMessage `json:"redirect,omitempty"`
	ThreeDS           json.RawMessage `json:"three_ds,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

// Subscription is the subset of the subscription resource the backend reads.
type Subscription struct {
	ID             string          `json:"id"`
	StoreID        string          `json:"store_id"`
	Status         string          `json:"status"`
	Mode           string          `json:"mode"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Period         string          `json:"period"`
	CyclicalPeriod string          `json:"cyclical_period"`
	NextPayment    json.RawMessage `json:"next_payment,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

type redirectBody struct {
	Endpoint string `json:"endpoint"`
}

type threeDSBody struct {
	Mode string `json:"mode"`
}

type chargeBody struct {
	TransactionTokenID string         `json:"transaction_token_id"`
	Amount             int64          `json:"amount"`
	Currency           string         `json:"currency"`
	Capture            *bool          `json:"capture,omitempty"`
	CaptureAt          string         `json:"capture_at,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Redirect           *redirectBody  `json:"redirect,omitempty"`
	ThreeDS            *threeDSBody   `json:"three_ds,omitempty"`
}

type scheduleSettings struct {
	ZoneID          string `json:"zone_id,omitempty"`
	StartOn         string `json:"start_on,omitempty"`
	TerminationMode string `json:"termination_mode,omitempty"`
}

type subscriptionBody struct {
	TransactionTokenID string           `json:"transaction_token_id"`
	Amount             int64            `json:"amount"`
	Currency           string           `json:"currency"`
	ScheduleSettings   scheduleSettings `json:"schedule_settings"`
	Period             string           `json:"period,omitempty"`
	CyclicalPeriod     string           `json:"cyclical_period,omitempty"`
	Metadata           map[string]any   `json:"metadata,omitempty"`
	Redirect           *redirectBody    `json:"redirect,omitempty"`
	ThreeDS            *threeDSBody     `json:"three_ds,omitempty"`
}

type captureBody struct {
	Amount int64 `json:"amount,omitempty"`
}

type cancelChargeBody struct {
	Reason string `json:"reason,omitempty"`
}

type cancelSubscriptionBody struct {
	ScheduleSettings scheduleSettings `json:"schedule_settings"`
}
