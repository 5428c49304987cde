package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

func TestPurchaseRecordsProductPayment(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.svc.Purchase(context.Background(), "alice", PurchaseRequest{ItemName: "Widget", Amount: 500})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, models.PaymentKindProduct, p.Kind)
	assert.Equal(t, "Widget", *p.ItemName)
	assert.Equal(t, int64(500), p.AmountJPY)
	assert.Nil(t, p.Plan)
	assert.Equal(t, int64(0), env.count(t, &models.ProviderPayment{}))
}

func TestPurchaseValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  PurchaseRequest
		msg  string
	}{
		{"missing item", PurchaseRequest{ItemName: "  ", Amount: 500}, "Item name is required"},
		{"zero amount", PurchaseRequest{ItemName: "Widget", Amount: 0}, "Amount must be a positive integer (JPY)"},
		{"negative amount", PurchaseRequest{ItemName: "Widget", Amount: -5}, "Amount must be a positive integer (JPY)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Purchase(context.Background(), "alice", tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.msg, verr.Message)
		})
	}
	assert.Equal(t, int64(0), env.count(t, &models.Payment{}))
}

func TestSubscribeUsesCatalogPrice(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.svc.Subscribe(context.Background(), "alice", "monthly")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentKindSubscription, p.Kind)
	assert.Equal(t, int64(10000), p.AmountJPY)
	assert.Equal(t, "monthly", *p.Plan)
	assert.Nil(t, p.ItemName)

	p, err = env.svc.Subscribe(context.Background(), "alice", "6months")
	require.NoError(t, err)
	assert.Equal(t, int64(58000), p.AmountJPY)

	_, err = env.svc.Subscribe(context.Background(), "alice", "yearly")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Invalid plan. Use 'monthly' or '6months'.", verr.Message)
}

func TestCheckoutChargePersistsAndSchedulesPoll(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{
		TransactionTokenID: " tok_1 ",
		ItemName:           "Widget",
		Amount:             500,
		ThreeDSMode:        "normal",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Charge)
	assert.Nil(t, res.Subscription)

	require.Len(t, env.gateway.chargeParams, 1)
	params := env.gateway.chargeParams[0]
	assert.Equal(t, "tok_1", params.TransactionTokenID)
	assert.Equal(t, "JPY", params.Currency)
	require.NotNil(t, params.Capture)
	assert.True(t, *params.Capture)
	assert.Equal(t, "alice", params.Metadata["user"])
	assert.Equal(t, "Widget", params.Metadata["item_name"])
	assert.NotEmpty(t, params.IdempotencyKey)

	pp, err := env.repo.GetProviderPaymentByChargeID(models.ProviderUnivapay, res.Charge.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Payment.ID, pp.PaymentID)
	assert.Equal(t, models.ProviderStatusPending, pp.StatusValue())
	assert.Equal(t, "JPY", pp.Currency)
	assert.JSONEq(t, string(res.Charge.Raw), pp.RawJSON)

	require.Len(t, env.scheduler.polls, 1)
	assert.Equal(t, PollTask{ProviderPaymentID: pp.ID, Kind: PollKindCharge}, env.scheduler.polls[0].task)
	assert.Equal(t, testPoll.After, env.scheduler.polls[0].delay)
}

func TestCheckoutChargeAuthorizeOnly(t *testing.T) {
	env := newTestEnv(t)
	capture := false

	_, err := env.svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{
		TransactionTokenID: "tok_1", ItemName: "Widget", Amount: 500, Capture: &capture,
	})
	require.NoError(t, err)
	require.NotNil(t, env.gateway.chargeParams[0].Capture)
	assert.False(t, *env.gateway.chargeParams[0].Capture)
}

func TestCheckoutChargeGatewayErrorWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.createChargeErr = &univapay.APIError{Message: "card declined", Status: 402, Body: map[string]any{"code": "CARD_DECLINED"}}

	_, err := env.svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{
		TransactionTokenID: "tok_1", ItemName: "Widget", Amount: 500,
	})
	var apiErr *univapay.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 402, apiErr.Status)

	assert.Equal(t, int64(0), env.count(t, &models.Payment{}))
	assert.Equal(t, int64(0), env.count(t, &models.ProviderPayment{}))
	assert.Empty(t, env.scheduler.polls)
}

func TestCheckoutChargeValidationPrecedesGateway(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  ChargeRequest
		msg  string
	}{
		{"missing token", ChargeRequest{ItemName: "Widget", Amount: 500}, "transaction_token_id is required"},
		{"missing item", ChargeRequest{TransactionTokenID: "tok", Amount: 500}, "item_name is required"},
		{"zero amount", ChargeRequest{TransactionTokenID: "tok", ItemName: "Widget"}, "amount must be a positive integer (JPY)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CheckoutCharge(context.Background(), "alice", tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.msg, verr.Message)
		})
	}
	assert.Empty(t, env.gateway.chargeParams)
}

func TestCheckoutWithoutGateway(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db, Deps{})

	_, err := svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	_, err = svc.CheckoutSubscription(context.Background(), "alice", SubscriptionRequest{})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCheckoutIdempotencyKeysAreUnique(t *testing.T) {
	env := newTestEnv(t)

	const n = 25
	for i := 0; i < n; i++ {
		_, err := env.svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{
			TransactionTokenID: "tok", ItemName: "Widget", Amount: 100,
		})
		require.NoError(t, err)
	}

	seen := make(map[string]bool, n)
	for _, k := range env.gateway.chargeKeys {
		assert.False(t, seen[k], "duplicate idempotency key %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, n)
}

func TestCheckoutSubscriptionUsesCatalog(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.CheckoutSubscription(context.Background(), "alice", SubscriptionRequest{
		TransactionTokenID: "tok_s", Plan: "6months",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Subscription)

	require.Len(t, env.gateway.subscriptionArgs, 1)
	args := env.gateway.subscriptionArgs[0]
	assert.Equal(t, int64(58000), args.Amount)
	assert.Equal(t, PeriodSemiannual, args.Period)
	assert.Equal(t, "6months", args.Metadata["plan"])

	assert.Equal(t, int64(58000), res.Payment.AmountJPY)
	assert.Equal(t, res.Subscription.ID, res.Provider.SubscriptionID())
	assert.Equal(t, "{}", res.Provider.RawJSON)

	require.Len(t, env.scheduler.polls, 1)
	assert.Equal(t, PollKindSubscription, env.scheduler.polls[0].task.Kind)

	_, err = env.svc.CheckoutSubscription(context.Background(), "alice", SubscriptionRequest{TransactionTokenID: "tok", Plan: "weekly"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, env.gateway.subscriptionArgs, 1)
}

func TestCheckoutPollDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.svc.reconciler.poll.Enabled = false

	_, err := env.svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{TransactionTokenID: "tok", ItemName: "Widget", Amount: 1})
	require.NoError(t, err)
	assert.Empty(t, env.scheduler.polls)
}

func TestCheckoutSchedulingFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.err = errors.New("redis down")

	res, err := env.svc.CheckoutCharge(context.Background(), "alice", ChargeRequest{TransactionTokenID: "tok", ItemName: "Widget", Amount: 1})
	require.NoError(t, err)
	assert.NotZero(t, res.Provider.ID)
}

func TestListPaymentsNewestFirstWithProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Purchase(ctx, "alice", PurchaseRequest{ItemName: "Widget", Amount: 500})
	require.NoError(t, err)
	checkout, err := env.svc.CheckoutCharge(ctx, "alice", ChargeRequest{TransactionTokenID: "tok", ItemName: "Gadget", Amount: 800})
	require.NoError(t, err)
	_, err = env.svc.Purchase(ctx, "bob", PurchaseRequest{ItemName: "Other", Amount: 1})
	require.NoError(t, err)

	list, err := env.svc.ListPayments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, checkout.Payment.ID, list[0].Payment.ID)
	require.NotNil(t, list[0].Provider)
	assert.Equal(t, checkout.Charge.ID, list[0].Provider.ChargeID())
	assert.Equal(t, first.ID, list[1].Payment.ID)
	assert.Nil(t, list[1].Provider)
}

func TestCapturePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	capture := false
	res, err := env.svc.CheckoutCharge(ctx, "alice", ChargeRequest{TransactionTokenID: "tok", ItemName: "Widget", Amount: 500, Capture: &capture})
	require.NoError(t, err)

	_, err = env.svc.CapturePayment(ctx, "mallory", res.Payment.ID, 0)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	pp, err := env.svc.CapturePayment(ctx, "alice", res.Payment.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusSuccessful, pp.StatusValue())
	assert.Equal(t, []int64{0}, env.gateway.captured)
	assert.JSONEq(t, `{"status":"successful"}`, pp.RawJSON)

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, "capture", env.publisher.events[0].Source)
}

func TestCancelPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	charge, err := env.svc.CheckoutCharge(ctx, "alice", ChargeRequest{TransactionTokenID: "tok", ItemName: "Widget", Amount: 500})
	require.NoError(t, err)
	sub, err := env.svc.CheckoutSubscription(ctx, "alice", SubscriptionRequest{TransactionTokenID: "tok", Plan: "monthly"})
	require.NoError(t, err)
	local, err := env.svc.Purchase(ctx, "alice", PurchaseRequest{ItemName: "Local", Amount: 1})
	require.NoError(t, err)

	pp, err := env.svc.CancelPayment(ctx, "alice", charge.Payment.ID, "requested", "")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusCanceled, pp.StatusValue())
	assert.JSONEq(t, string(charge.Charge.Raw), pp.RawJSON, "empty gateway body keeps the snapshot")

	pp, err = env.svc.CancelPayment(ctx, "alice", sub.Payment.ID, "", "immediate")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusCanceled, pp.StatusValue())

	_, err = env.svc.CancelPayment(ctx, "alice", local.ID, "", "")
	assert.ErrorIs(t, err, ErrNoProviderLink)
	_, err = env.svc.CancelPayment(ctx, "alice", 9999, "", "")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	assert.Equal(t, []string{charge.Charge.ID}, env.gateway.canceledCharges)
	assert.Equal(t, []string{sub.Subscription.ID}, env.gateway.canceledSubs)
}
