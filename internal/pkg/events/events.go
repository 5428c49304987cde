// Package events publishes provider status changes so other services can react
// to settled charges and subscriptions without polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const (
	ExchangeName = "payfox.payments"
	// RoutingKeyPrefix is followed by the provider status, e.g. "payment.status.successful".
	RoutingKeyPrefix = "payment.status."
)

// StatusChanged is emitted after a provider payment status write.
type StatusChanged struct {
	ProviderPaymentID uint      `json:"provider_payment_id"`
	PaymentID         uint      `json:"payment_id"`
	ChargeID          string    `json:"charge_id,omitempty"`
	SubscriptionID    string    `json:"subscription_id,omitempty"`
	Status            string    `json:"status"`
	Source            string    `json:"source"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// RoutingKey derives the topic routing key from the status.
func (e StatusChanged) RoutingKey() string {
	status := strings.ToLower(strings.TrimSpace(e.Status))
	if status == "" {
		status = "unknown"
	}
	return RoutingKeyPrefix + status
}

type Publisher interface {
	PublishStatusChanged(ctx context.Context, evt StatusChanged) error
	Close() error
}

// NewPublisherFromEnv connects to EVENTS_AMQP_URL, or returns a no-op
// publisher when it is unset or unreachable.
func NewPublisherFromEnv() Publisher {
	url := strings.TrimSpace(env.GetEnv("EVENTS_AMQP_URL", ""))
	if url == "" {
		return NoopPublisher{}
	}
	p, err := NewAMQPPublisher(url, env.GetEnv("EVENTS_AMQP_EXCHANGE", ExchangeName))
	if err != nil {
		log.Warnf("[Events] AMQP publisher disabled: %v", err)
		return NoopPublisher{}
	}
	return p
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChanged(ctx context.Context, evt StatusChanged) error {
	log.Debugf("[Events] noop publish %s provider_payment=%d", evt.RoutingKey(), evt.ProviderPaymentID)
	return nil
}

func (NoopPublisher) Close() error { return nil }

func encode(evt StatusChanged) ([]byte, error) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode status event: %w", err)
	}
	return b, nil
}
