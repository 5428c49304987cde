package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/events"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

// Gateway is the subset of the UnivaPay client the billing flows need.
// *univapay.Client implements it.
type Gateway interface {
	CreateCharge(ctx context.Context, p univapay.ChargeParams) (*univapay.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*univapay.Charge, error)
	CaptureCharge(ctx context.Context, chargeID string, amount int64, idempotencyKey string) (*univapay.Charge, error)
	CancelCharge(ctx context.Context, chargeID, reason, idempotencyKey string) (*univapay.Charge, error)
	CreateSubscription(ctx context.Context, p univapay.SubscriptionParams) (*univapay.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*univapay.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, terminationMode, idempotencyKey string) (*univapay.Subscription, error)
}

// PollScheduler runs a provider status check after a delay, independent of
// the request that scheduled it.
type PollScheduler interface {
	SchedulePoll(ctx context.Context, task PollTask, delay time.Duration) error
}

// WebhookArchiver keeps a copy of stored webhook events outside the database.
type WebhookArchiver interface {
	ArchiveWebhook(ctx context.Context, evt *models.WebhookEvent) error
}

// PollConfig controls the polling fallback to webhooks.
type PollConfig struct {
	Enabled    bool
	After      time.Duration
	RetryAfter time.Duration
}

// PollConfigFromEnv reads UNIVAPAY_POLL_* settings.
func PollConfigFromEnv() PollConfig {
	return PollConfig{
		Enabled:    env.GetBool("UNIVAPAY_POLL_ENABLE", true),
		After:      env.GetSeconds("UNIVAPAY_POLL_AFTER_SECONDS", 30*time.Second),
		RetryAfter: env.GetSeconds("UNIVAPAY_POLL_RETRY_SECONDS", 60*time.Second),
	}
}

// Deps are the collaborators shared by Service and Reconciler. Gateway,
// Scheduler, Publisher and Archiver may be nil.
type Deps struct {
	Gateway   Gateway
	Scheduler PollScheduler
	Publisher events.Publisher
	Archiver  WebhookArchiver
	Poll      PollConfig
	Now       func() time.Time
}

// Service records purchases and runs the UnivaPay checkout flows.
type Service struct {
	repo       Repository
	gateway    Gateway
	reconciler *Reconciler
	validate   *validator.Validate
	now        func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		repo:       repo,
		gateway:    deps.Gateway,
		reconciler: NewReconciler(repo, deps),
		validate:   validator.New(),
		now:        deps.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, deps Deps) *Service {
	return NewService(NewRepository(db), deps)
}

// Reconciler returns the status reconciler sharing this service's store.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// Purchase records a local product purchase.
func (s *Service) Purchase(_ context.Context, user string, req PurchaseRequest) (*models.Payment, error) {
	req.ItemName = strings.TrimSpace(req.ItemName)
	if req.ItemName == "" {
		return nil, invalid("Item name is required")
	}
	if req.Amount <= 0 {
		return nil, invalid("Amount must be a positive integer (JPY)")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	p := models.NewProductPayment(user, req.ItemName, req.Amount)
	if err := s.repo.CreatePayment(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Subscribe records a local subscription at the catalog price.
func (s *Service) Subscribe(_ context.Context, user, planCode string) (*models.Payment, error) {
	plan, ok := LookupPlan(planCode)
	if !ok {
		return nil, invalid(fieldMessages["Plan"])
	}
	p := models.NewSubscriptionPayment(user, plan.Code, plan.AmountJPY)
	if err := s.repo.CreatePayment(p); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckoutCharge creates a one-time charge at the gateway and records it
// locally whatever status the gateway reported.
func (s *Service) CheckoutCharge(ctx context.Context, user string, req ChargeRequest) (*CheckoutResult, error) {
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	req.TransactionTokenID = strings.TrimSpace(req.TransactionTokenID)
	req.ItemName = strings.TrimSpace(req.ItemName)
	req.ThreeDSMode = strings.TrimSpace(req.ThreeDSMode)
	req.RedirectEndpoint = strings.TrimSpace(req.RedirectEndpoint)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	capture := true
	if req.Capture != nil {
		capture = *req.Capture
	}
	charge, err := s.gateway.CreateCharge(ctx, univapay.ChargeParams{
		TransactionTokenID: req.TransactionTokenID,
		Amount:             req.Amount,
		Currency:           models.DefaultCurrency,
		Capture:            &capture,
		Metadata:           map[string]any{"user": user, "item_name": req.ItemName},
		ThreeDSMode:        req.ThreeDSMode,
		RedirectEndpoint:   req.RedirectEndpoint,
		IdempotencyKey:     univapay.NewIdempotencyKey(),
	})
	if err != nil {
		return nil, err
	}

	payment := models.NewProductPayment(user, req.ItemName, req.Amount)
	provider := &models.ProviderPayment{
		Provider:         models.ProviderUnivapay,
		ProviderChargeID: models.StringPtr(charge.ID),
		Status:           models.StringPtr(charge.Status),
		Currency:         currencyOrDefault(charge.ChargedCurrency),
		RawJSON:          rawString(charge.Raw),
	}
	if err := s.repo.CreatePaymentWithProvider(payment, provider); err != nil {
		log.Errorf("[Checkout] charge %s succeeded at the gateway but was not stored: %v", charge.ID, err)
		return nil, fmt.Errorf("store charge %s: %w", charge.ID, err)
	}
	log.Infof("[Checkout] user=%s charge=%s status=%s payment=%d", user, charge.ID, charge.Status, payment.ID)

	if charge.ID != "" {
		s.reconciler.schedulePoll(ctx, PollTask{ProviderPaymentID: provider.ID, Kind: PollKindCharge}, s.reconciler.poll.After)
	}
	return &CheckoutResult{Payment: payment, Provider: provider, Charge: charge}, nil
}

// CheckoutSubscription creates a subscription for a catalog plan. Price and
// period come from the catalog only.
func (s *Service) CheckoutSubscription(ctx context.Context, user string, req SubscriptionRequest) (*CheckoutResult, error) {
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}
	req.TransactionTokenID = strings.TrimSpace(req.TransactionTokenID)
	req.ThreeDSMode = strings.TrimSpace(req.ThreeDSMode)
	req.RedirectEndpoint = strings.TrimSpace(req.RedirectEndpoint)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	plan, ok := LookupPlan(req.Plan)
	if !ok {
		return nil, invalid(fieldMessages["Plan"])
	}

	sub, err := s.gateway.CreateSubscription(ctx, univapay.SubscriptionParams{
		TransactionTokenID: req.TransactionTokenID,
		Amount:             plan.AmountJPY,
		Currency:           models.DefaultCurrency,
		Period:             plan.Period,
		Metadata:           map[string]any{"user": user, "plan": plan.Code},
		ThreeDSMode:        req.ThreeDSMode,
		RedirectEndpoint:   req.RedirectEndpoint,
		IdempotencyKey:     univapay.NewIdempotencyKey(),
	})
	if err != nil {
		return nil, err
	}

	payment := models.NewSubscriptionPayment(user, plan.Code, plan.AmountJPY)
	provider := &models.ProviderPayment{
		Provider:               models.ProviderUnivapay,
		ProviderSubscriptionID: models.StringPtr(sub.ID),
		Status:                 models.StringPtr(sub.Status),
		Currency:               currencyOrDefault(sub.Currency),
		RawJSON:                rawString(sub.Raw),
	}
	if err := s.repo.CreatePaymentWithProvider(payment, provider); err != nil {
		log.Errorf("[Checkout] subscription %s succeeded at the gateway but was not stored: %v", sub.ID, err)
		return nil, fmt.Errorf("store subscription %s: %w", sub.ID, err)
	}
	log.Infof("[Checkout] user=%s subscription=%s plan=%s status=%s payment=%d", user, sub.ID, plan.Code, sub.Status, payment.ID)

	if sub.ID != "" {
		s.reconciler.schedulePoll(ctx, PollTask{ProviderPaymentID: provider.ID, Kind: PollKindSubscription}, s.reconciler.poll.After)
	}
	return &CheckoutResult{Payment: payment, Provider: provider, Subscription: sub}, nil
}

// ListPayments returns the user's payments newest first, each with its
// provider record when one exists.
func (s *Service) ListPayments(_ context.Context, user string) ([]PaymentWithProvider, error) {
	payments, err := s.repo.ListPaymentsByUser(user)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID)
	}
	providers, err := s.repo.ListProviderPaymentsByPaymentIDs(models.ProviderUnivapay, ids)
	if err != nil {
		return nil, err
	}
	byPayment := make(map[uint]*models.ProviderPayment, len(providers))
	for i := range providers {
		if _, seen := byPayment[providers[i].PaymentID]; !seen {
			byPayment[providers[i].PaymentID] = &providers[i]
		}
	}

	out := make([]PaymentWithProvider, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentWithProvider{Payment: p, Provider: byPayment[p.ID]})
	}
	return out, nil
}

// CapturePayment captures an authorized charge owned by user. amount 0
// captures the full authorized amount.
func (s *Service) CapturePayment(ctx context.Context, user string, paymentID uint, amount int64) (*models.ProviderPayment, error) {
	if amount < 0 {
		return nil, invalid("amount must be a positive integer (JPY)")
	}
	pp, err := s.ownedProviderPayment(user, paymentID)
	if err != nil {
		return nil, err
	}
	if pp.ChargeID() == "" {
		return nil, invalid("only one-time charges can be captured")
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	charge, err := s.gateway.CaptureCharge(ctx, pp.ChargeID(), amount, univapay.NewIdempotencyKey())
	if err != nil {
		return nil, err
	}
	return s.applyGatewayResult(ctx, pp, charge.Status, charge.Raw, "capture")
}

// CancelPayment cancels the charge or subscription behind a payment owned by
// user. reason applies to charges, terminationMode to subscriptions.
func (s *Service) CancelPayment(ctx context.Context, user string, paymentID uint, reason, terminationMode string) (*models.ProviderPayment, error) {
	pp, err := s.ownedProviderPayment(user, paymentID)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	key := univapay.NewIdempotencyKey()
	switch {
	case pp.ChargeID() != "":
		charge, err := s.gateway.CancelCharge(ctx, pp.ChargeID(), reason, key)
		if err != nil {
			return nil, err
		}
		return s.applyGatewayResult(ctx, pp, charge.Status, charge.Raw, "cancel")
	case pp.SubscriptionID() != "":
		sub, err := s.gateway.CancelSubscription(ctx, pp.SubscriptionID(), terminationMode, key)
		if err != nil {
			return nil, err
		}
		return s.applyGatewayResult(ctx, pp, sub.Status, sub.Raw, "cancel")
	default:
		return nil, ErrNoProviderLink
	}
}

func (s *Service) ownedProviderPayment(user string, paymentID uint) (*models.ProviderPayment, error) {
	payment, err := s.repo.GetPaymentByID(paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if payment.User != user {
		return nil, ErrPaymentNotFound
	}
	pp, err := s.repo.GetProviderPaymentByPaymentID(models.ProviderUnivapay, payment.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoProviderLink
	}
	return pp, err
}

func (s *Service) applyGatewayResult(ctx context.Context, pp *models.ProviderPayment, status string, raw []byte, source string) (*models.ProviderPayment, error) {
	update := StatusUpdate{Status: status, Source: source}
	if len(raw) > 0 {
		r := string(raw)
		update.RawJSON = &r
	}
	if _, err := s.reconciler.ApplyStatus(ctx, pp.ID, update); err != nil {
		return nil, err
	}
	return s.repo.GetProviderPaymentByID(pp.ID)
}

func currencyOrDefault(cur string) string {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if cur == "" {
		return models.DefaultCurrency
	}
	return cur
}

func rawString(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
