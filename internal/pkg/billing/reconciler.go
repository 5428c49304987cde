package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/events"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
)

const (
	maxEventTypeLength = 64
	maxStatusLength    = 64
)

// Header names kept on stored webhook events.
var webhookHeaderSubset = []string{"content-type", "authorization", "user-agent", "x-forwarded-for"}

// Reconciler keeps provider payment status in line with the gateway, through
// delayed polls and inbound webhooks. Both paths write through ApplyStatus;
// the last write wins.
type Reconciler struct {
	repo      Repository
	gateway   Gateway
	scheduler PollScheduler
	publisher events.Publisher
	archiver  WebhookArchiver
	poll      PollConfig
	now       func() time.Time
}

// NewReconciler creates a reconciler. Missing optional collaborators disable
// the matching feature.
func NewReconciler(repo Repository, deps Deps) *Reconciler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	return &Reconciler{
		repo:      repo,
		gateway:   deps.Gateway,
		scheduler: deps.Scheduler,
		publisher: deps.Publisher,
		archiver:  deps.Archiver,
		poll:      deps.Poll,
		now:       deps.Now,
	}
}

// ApplyStatus is the single write path for provider status. It reports false
// when no row has the given id.
func (r *Reconciler) ApplyStatus(ctx context.Context, providerPaymentID uint, update StatusUpdate) (bool, error) {
	if clipped := truncate(update.Status, maxStatusLength); clipped != update.Status {
		log.Warnf("[Reconciler] status clipped to %d characters provider_id=%d", maxStatusLength, providerPaymentID)
		update.Status = clipped
	}
	at := r.now().UTC()
	ok, err := r.repo.UpdateProviderPaymentStatus(providerPaymentID, update, at)
	if err != nil || !ok {
		return ok, err
	}
	metrics.StatusUpdatesTotal.WithLabelValues(update.Source).Inc()

	if update.Status != "" {
		r.publish(ctx, providerPaymentID, update, at)
	}
	return true, nil
}

func (r *Reconciler) publish(ctx context.Context, providerPaymentID uint, update StatusUpdate, at time.Time) {
	pp, err := r.repo.GetProviderPaymentByID(providerPaymentID)
	if err != nil {
		log.Warnf("[Reconciler] status event skipped provider_id=%d: %v", providerPaymentID, err)
		return
	}
	evt := events.StatusChanged{
		ProviderPaymentID: pp.ID,
		PaymentID:         pp.PaymentID,
		ChargeID:          pp.ChargeID(),
		SubscriptionID:    pp.SubscriptionID(),
		Status:            update.Status,
		Source:            update.Source,
		OccurredAt:        at,
	}
	if err := r.publisher.PublishStatusChanged(ctx, evt); err != nil {
		log.Warnf("[Reconciler] failed to publish %s provider_id=%d: %v", evt.RoutingKey(), pp.ID, err)
	}
}

// ApplyByChargeID updates the record holding chargeID. A missing record is
// not an error.
func (r *Reconciler) ApplyByChargeID(ctx context.Context, chargeID string, update StatusUpdate) (uint, bool, error) {
	pp, err := r.repo.GetProviderPaymentByChargeID(models.ProviderUnivapay, chargeID)
	return r.applyFound(ctx, pp, err, update)
}

// ApplyBySubscriptionID updates the record holding subscriptionID. A missing
// record is not an error.
func (r *Reconciler) ApplyBySubscriptionID(ctx context.Context, subscriptionID string, update StatusUpdate) (uint, bool, error) {
	pp, err := r.repo.GetProviderPaymentBySubscriptionID(models.ProviderUnivapay, subscriptionID)
	return r.applyFound(ctx, pp, err, update)
}

func (r *Reconciler) applyFound(ctx context.Context, pp *models.ProviderPayment, err error, update StatusUpdate) (uint, bool, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	ok, err := r.ApplyStatus(ctx, pp.ID, update)
	return pp.ID, ok, err
}

// schedulePoll queues a status check detached from the caller's lifetime.
// Scheduling failures only cost the fallback, so they are logged.
func (r *Reconciler) schedulePoll(ctx context.Context, task PollTask, delay time.Duration) {
	if !r.poll.Enabled || r.scheduler == nil || r.gateway == nil {
		return
	}
	if err := r.scheduler.SchedulePoll(context.WithoutCancel(ctx), task, delay); err != nil {
		log.Errorf("[Poller] Failed to schedule %s poll provider_id=%d: %v", task.Kind, task.ProviderPaymentID, err)
	}
}

// RunPoll fetches the current gateway state for one provider record and
// stores it. A charge that is still settling after the first poll gets exactly
// one more.
func (r *Reconciler) RunPoll(ctx context.Context, task PollTask) error {
	if r.gateway == nil {
		return ErrGatewayUnavailable
	}
	pp, err := r.repo.GetProviderPaymentByID(task.ProviderPaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.PollRunsTotal.WithLabelValues(string(task.Kind), "missing").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	var (
		status string
		raw    []byte
	)
	switch {
	case task.Kind == PollKindCharge && pp.ChargeID() != "":
		charge, err := r.gateway.GetCharge(ctx, pp.ChargeID())
		if err != nil {
			metrics.PollRunsTotal.WithLabelValues(string(task.Kind), "error").Inc()
			return err
		}
		status, raw = charge.Status, charge.Raw
	case task.Kind == PollKindSubscription && pp.SubscriptionID() != "":
		sub, err := r.gateway.GetSubscription(ctx, pp.SubscriptionID())
		if err != nil {
			metrics.PollRunsTotal.WithLabelValues(string(task.Kind), "error").Inc()
			return err
		}
		status, raw = sub.Status, sub.Raw
	default:
		metrics.PollRunsTotal.WithLabelValues(string(task.Kind), "skipped").Inc()
		return nil
	}

	snapshot := rawString(raw)
	if _, err := r.ApplyStatus(ctx, pp.ID, StatusUpdate{Status: status, RawJSON: &snapshot, Source: "poll"}); err != nil {
		metrics.PollRunsTotal.WithLabelValues(string(task.Kind), "error").Inc()
		return err
	}
	metrics.PollRunsTotal.WithLabelValues(string(task.Kind), "ok").Inc()
	log.Infof("[Poller] %s provider_id=%d attempt=%d status=%q", task.Kind, pp.ID, task.Attempt, status)

	if task.Attempt == 0 && task.Kind == PollKindCharge && isSettlingStatus(status) {
		r.schedulePoll(ctx, PollTask{ProviderPaymentID: pp.ID, Kind: PollKindCharge, Attempt: 1}, r.poll.RetryAfter)
	}
	return nil
}

// HandleWebhook stores an authenticated webhook and applies the status it
// carries. Only the event insert can fail the call; everything after it is
// logged and acknowledged.
func (r *Reconciler) HandleWebhook(ctx context.Context, d WebhookDelivery) (*WebhookOutcome, error) {
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = r.now()
	}

	var body map[string]any
	parseErr := json.Unmarshal(d.Body, &body)
	if parseErr == nil && body == nil {
		parseErr = errors.New("webhook body is not a JSON object")
	}

	evt := &models.WebhookEvent{
		Provider:   models.ProviderUnivapay,
		Payload:    string(d.Body),
		Headers:    encodeHeaders(d.Headers),
		ReceivedAt: d.ReceivedAt.UTC(),
	}
	if parseErr == nil {
		evt.EventType = models.StringPtr(truncate(extractEventType(body), maxEventTypeLength))
	}
	if err := r.repo.CreateWebhookEvent(evt); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store webhook event: %w", err)
	}
	outcome := &WebhookOutcome{EventID: evt.ID}
	if evt.EventType != nil {
		outcome.EventType = *evt.EventType
	}

	if r.archiver != nil {
		if err := r.archiver.ArchiveWebhook(ctx, evt); err != nil {
			log.Warnf("[Webhook] archive failed event_id=%d: %v", evt.ID, err)
		}
	}

	if parseErr != nil {
		log.Warnf("[Webhook] event_id=%d stored with unparseable body: %v", evt.ID, parseErr)
		metrics.WebhookEventsTotal.WithLabelValues("invalid").Inc()
		return outcome, nil
	}

	ref, ok := ExtractWebhookReference(body)
	if !ok {
		log.Infof("[Webhook] event_id=%d type=%q carries no charge or subscription id", evt.ID, outcome.EventType)
		metrics.WebhookEventsTotal.WithLabelValues("none").Inc()
		return outcome, nil
	}

	update := StatusUpdate{Status: ref.Status, Source: "webhook"}
	if ref.ChargeID != "" {
		id, matched, err := r.ApplyByChargeID(ctx, ref.ChargeID, update)
		if err != nil {
			log.Errorf("[Webhook] event_id=%d charge=%s update failed: %v", evt.ID, ref.ChargeID, err)
			metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
			return outcome, nil
		}
		if matched {
			outcome.Matched, outcome.ProviderPaymentID = string(PollKindCharge), id
			metrics.WebhookEventsTotal.WithLabelValues("charge").Inc()
			log.Infof("[Webhook] event_id=%d charge=%s status=%q via %s", evt.ID, ref.ChargeID, ref.Status, ref.Strategy)
			return outcome, nil
		}
	}
	if ref.SubscriptionID != "" {
		id, matched, err := r.ApplyBySubscriptionID(ctx, ref.SubscriptionID, update)
		if err != nil {
			log.Errorf("[Webhook] event_id=%d subscription=%s update failed: %v", evt.ID, ref.SubscriptionID, err)
			metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
			return outcome, nil
		}
		if matched {
			outcome.Matched, outcome.ProviderPaymentID = string(PollKindSubscription), id
			metrics.WebhookEventsTotal.WithLabelValues("subscription").Inc()
			log.Infof("[Webhook] event_id=%d subscription=%s status=%q via %s", evt.ID, ref.SubscriptionID, ref.Status, ref.Strategy)
			return outcome, nil
		}
	}

	metrics.WebhookEventsTotal.WithLabelValues("none").Inc()
	log.Infof("[Webhook] event_id=%d no local record for charge=%q subscription=%q", evt.ID, ref.ChargeID, ref.SubscriptionID)
	return outcome, nil
}

// encodeHeaders keeps the audit header subset. The authorization value is a
// shared secret and is never stored.
func encodeHeaders(h map[string]string) string {
	lower := make(map[string]string, len(h))
	for k, v := range h {
		lower[strings.ToLower(k)] = v
	}
	subset := make(map[string]*string, len(webhookHeaderSubset))
	for _, name := range webhookHeaderSubset {
		v, ok := lower[name]
		if !ok || v == "" {
			subset[name] = nil
			continue
		}
		if name == "authorization" {
			v = "[redacted]"
		}
		subset[name] = &v
	}
	b, err := json.Marshal(subset)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// truncate keeps at most n runes, so multi-byte labels stay valid UTF-8 and
// fit character-counted VARCHAR columns.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
