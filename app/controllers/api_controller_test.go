package controllers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
)

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": " Nayeem ", "password": "password"})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, map[string]interface{}{"username": "Nayeem"}, body["user"])

	status, body = s.do(t, http.MethodGet, "/api/me", "Bearer "+token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"username": "Nayeem"}, body["user"])

	status, body = s.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "Nayeem", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])

	status, body = s.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing or invalid Authorization header", body["error"])
}

func TestPurchaseWidget(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.authed(t, http.MethodPost, "/api/purchase", map[string]interface{}{"item_name": "Widget", "amount": 500})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["ok"])

	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, "Nayeem", payment["user"])
	assert.Equal(t, "product", payment["kind"])
	assert.Equal(t, "Widget", payment["item_name"])
	assert.Equal(t, float64(500), payment["amount_jpy"])
	assert.Nil(t, payment["plan"])
	assert.Regexp(t, `Z$`, payment["created_at"])
}

func TestPurchaseValidationMessages(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"empty body", "", "Item name is required"},
		{"blank item", map[string]interface{}{"item_name": "  ", "amount": 5}, "Item name is required"},
		{"zero amount", map[string]interface{}{"item_name": "Widget", "amount": 0}, "Amount must be a positive integer (JPY)"},
		{"string amount", map[string]interface{}{"item_name": "Widget", "amount": "abc"}, "Amount must be a positive integer (JPY)"},
		{"fractional amount", map[string]interface{}{"item_name": "Widget", "amount": 1.5}, "Amount must be a positive integer (JPY)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.authed(t, http.MethodPost, "/api/purchase", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, body["error"])
		})
	}
	assert.Zero(t, s.count(t, &models.Payment{}))
}

func TestPurchaseAcceptsNumericString(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.authed(t, http.MethodPost, "/api/purchase", map[string]interface{}{"item_name": "Widget", "amount": "750"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(750), body["payment"].(map[string]interface{})["amount_jpy"])
}

func TestSubscribe(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.authed(t, http.MethodPost, "/api/subscribe", map[string]string{"plan": "Monthly"})
	require.Equal(t, http.StatusCreated, status)
	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, float64(10000), payment["amount_jpy"])
	assert.Equal(t, "monthly", payment["plan"])
	assert.Equal(t, "subscription", payment["kind"])

	status, body = s.authed(t, http.MethodPost, "/api/subscribe", map[string]string{"plan": "yearly"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid plan. Use 'monthly' or '6months'.", body["error"])
}

func TestCheckoutChargeFlow(t *testing.T) {
	s := newTestServer(t, true)

	status, body := s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{
		"transaction_token_id": map[string]string{"univapayTokenId": "tok_widget"},
		"item_name":            "Widget",
		"amount":               500,
		"three_ds_mode":        "normal",
	})
	require.Equal(t, http.StatusCreated, status, body)

	provider := body["provider"].(map[string]interface{})
	assert.Equal(t, "univapay", provider["provider"])
	assert.Equal(t, "ch_1", provider["charge_id"])
	assert.Equal(t, "pending", provider["status"])

	uv := body["univapay"].(map[string]interface{})
	assert.Equal(t, "ch_1", uv["charge_id"])
	assert.Equal(t, "test", uv["mode"])
	assert.Equal(t, map[string]interface{}{"endpoint": "https://shop.example/3ds"}, uv["redirect"])

	require.Len(t, s.gateway.bodies, 1)
	sent := s.gateway.bodies[0]
	assert.Equal(t, "tok_widget", sent["transaction_token_id"])
	assert.Equal(t, float64(500), sent["amount"])
	assert.Equal(t, "JPY", sent["currency"])
	assert.NotEmpty(t, s.gateway.requests[0].Header.Get("Idempotency-Key"))

	status, body = s.authed(t, http.MethodGet, "/api/payments", nil)
	require.Equal(t, http.StatusOK, status)
	payments := body["payments"].([]interface{})
	require.Len(t, payments, 1)
	listed := payments[0].(map[string]interface{})
	assert.Equal(t, "Widget", listed["item_name"])
	listedProvider := listed["provider"].(map[string]interface{})
	assert.Equal(t, "ch_1", listedProvider["charge_id"])
	assert.Equal(t, "JPY", listedProvider["currency"])
	assert.Nil(t, listedProvider["subscription_id"])
}

func TestCheckoutChargeGatewayRejection(t *testing.T) {
	s := newTestServer(t, true)
	s.gateway.failWith = http.StatusPaymentRequired
	s.gateway.failBody = `{"code":"CARD_DECLINED"}`

	status, body := s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{
		"transaction_token_id": "tok", "item_name": "Widget", "amount": 500,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "UnivaPay charge failed", body["error"])
	assert.Equal(t, float64(http.StatusPaymentRequired), body["status"])
	assert.Equal(t, map[string]interface{}{"code": "CARD_DECLINED"}, body["detail"])

	assert.Zero(t, s.count(t, &models.Payment{}))
	assert.Zero(t, s.count(t, &models.ProviderPayment{}))
}

func TestCheckoutChargeValidation(t *testing.T) {
	s := newTestServer(t, true)

	status, body := s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{"item_name": "Widget", "amount": 500})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "transaction_token_id is required", body["error"])

	status, body = s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{"transaction_token_id": "tok", "item_name": "Widget", "amount": -1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "amount must be a positive integer (JPY)", body["error"])

	assert.Empty(t, s.gateway.requests)
}

func TestCheckoutWithoutGateway(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{"transaction_token_id": "tok", "item_name": "Widget", "amount": 500})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "UnivaPay client not initialized (check env vars).", body["error"])

	status, body = s.authed(t, http.MethodPost, "/api/checkout/subscription", map[string]interface{}{"transaction_token_id": "tok", "plan": "monthly"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "UnivaPay client not initialized (check env vars).", body["error"])
}

func TestCheckoutSubscriptionFlow(t *testing.T) {
	s := newTestServer(t, true)

	status, body := s.authed(t, http.MethodPost, "/api/checkout/subscription", map[string]interface{}{
		"transaction_token_id": map[string]string{"id": "tok_sub"},
		"plan":                 "6months",
	})
	require.Equal(t, http.StatusCreated, status, body)

	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, float64(58000), payment["amount_jpy"])
	provider := body["provider"].(map[string]interface{})
	assert.Equal(t, "sub_1", provider["subscription_id"])
	uv := body["univapay"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"due_date": "2026-11-17"}, uv["next_payment"])

	sent := s.gateway.bodies[0]
	assert.Equal(t, float64(58000), sent["amount"])
	assert.Equal(t, "semiannually", sent["period"])

	status, body = s.authed(t, http.MethodPost, "/api/checkout/subscription", map[string]interface{}{"transaction_token_id": "tok", "plan": "weekly"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid plan. Use 'monthly' or '6months'.", body["error"])
}

func TestCaptureAndCancelEndpoints(t *testing.T) {
	s := newTestServer(t, true)

	_, body := s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{
		"transaction_token_id": "tok", "item_name": "Widget", "amount": 500, "capture": false,
	})
	paymentID := body["payment"].(map[string]interface{})["id"]

	status, body := s.authed(t, http.MethodPost, fmt.Sprintf("/api/payments/%v/capture", paymentID), map[string]interface{}{"amount": 300})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "successful", body["provider"].(map[string]interface{})["status"])

	status, body = s.authed(t, http.MethodPost, fmt.Sprintf("/api/payments/%v/cancel", paymentID), map[string]interface{}{"reason": "customer request"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "canceled", body["provider"].(map[string]interface{})["status"])

	status, body = s.authed(t, http.MethodPost, "/api/payments/999/cancel", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Payment not found", body["error"])

	status, _ = s.authed(t, http.MethodPost, "/api/payments/abc/capture", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebhookAppliesStatusIdempotently(t *testing.T) {
	s := newTestServer(t, true)

	_, body := s.authed(t, http.MethodPost, "/api/checkout/charge", map[string]interface{}{
		"transaction_token_id": "tok", "item_name": "Widget", "amount": 500,
	})
	chargeID := body["provider"].(map[string]interface{})["charge_id"].(string)

	hook := fmt.Sprintf(`{"object":"charge","id":%q,"status":"successful","event":"charge_finished"}`, chargeID)
	for i := 0; i < 2; i++ {
		status, body := s.do(t, http.MethodPost, "/api/univapay/webhook", "Bearer "+testWebhook, hook)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["ok"])
	}

	var pp models.ProviderPayment
	require.NoError(t, s.db.Where("provider_charge_id = ?", chargeID).First(&pp).Error)
	assert.Equal(t, "successful", pp.StatusValue())
	assert.Equal(t, int64(2), s.count(t, &models.WebhookEvent{}))
}

func TestWebhookRejectsWrongAuthWithoutStoring(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPost, "/api/univapay/webhook", "Bearer wrong", `{"object":"charge","id":"ch_1"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized webhook", body["error"])
	assert.Zero(t, s.count(t, &models.WebhookEvent{}))
}

func TestWebhookInvalidJSONIsStoredAndAcknowledged(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPost, "/api/univapay/webhook", "Bearer "+testWebhook, `{broken`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, int64(1), s.count(t, &models.WebhookEvent{}))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"PORT": float64(5000), "DB": "poc.db"}, body["env"])

	s.authed(t, http.MethodPost, "/api/purchase", map[string]interface{}{"item_name": "Widget", "amount": 1})

	status, body = s.do(t, http.MethodGet, "/db/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["payments_count"])
	columns := body["columns"].(map[string]interface{})
	assert.Contains(t, columns["provider_payments"], "raw_json")
	assert.Contains(t, columns["webhook_events"], "received_at")
	assert.ElementsMatch(t, []interface{}{"payments", "provider_payments", "webhook_events"}, body["tables"])
}

func TestNormalizeTransactionToken(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"  tok_1 ", "tok_1"},
		{map[string]interface{}{"id": "tok_2"}, "tok_2"},
		{map[string]interface{}{"token_id": "tok_3"}, "tok_3"},
		{map[string]interface{}{"univapayTokenId": " tok_4 "}, "tok_4"},
		{map[string]interface{}{"id": "", "token_id": "tok_5"}, "tok_5"},
		{map[string]interface{}{"other": "x"}, ""},
		{float64(42), "42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeTransactionToken(tt.in), "%v", tt.in)
	}
}

func TestUTCISO(t *testing.T) {
	assert.Equal(t, "2026-10-17T09:00:00Z", utcISO(time.Date(2026, 10, 17, 18, 0, 0, 0, time.FixedZone("JST", 9*3600))))
	assert.Equal(t, "2026-10-17T09:00:00.123456Z", utcISO(time.Date(2026, 10, 17, 9, 0, 0, 123456789, time.UTC)))
}
