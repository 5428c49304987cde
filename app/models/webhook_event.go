package models

import "time"

// WebhookEvent is the append-only audit record of an inbound provider
// notification. It is written before any attempt to apply the event.
type WebhookEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"type:varchar(32);not null;default:'univapay';index" json:"provider"`
	EventType  *string   `gorm:"type:varchar(64);default:null;index" json:"event_type"`
	Payload    string    `gorm:"type:longtext;not null" json:"payload"`
	Headers    string    `gorm:"type:text" json:"headers"`
	ReceivedAt time.Time `gorm:"not null;index" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
