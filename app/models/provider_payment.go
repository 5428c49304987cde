package models

import "time"

const (
	ProviderUnivapay = "univapay"
	DefaultCurrency  = "JPY"
)

// Provider statuses the reconciler treats as "still settling" for charges.
const (
	ProviderStatusPending    = "pending"
	ProviderStatusAwaiting   = "awaiting"
	ProviderStatusSuccessful = "successful"
	ProviderStatusFailed     = "failed"
	ProviderStatusCurrent    = "current"
	ProviderStatusCanceled   = "canceled"
)

// ProviderPayment links a local Payment to its charge or subscription at the
// gateway. Only the reconciler mutates status, raw_json and updated_at.
type ProviderPayment struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	Provider               string    `gorm:"type:varchar(32);not null;default:'univapay';index:idx_provider_payments_provider_payment,priority:1;index:idx_provider_payments_charge,priority:1;index:idx_provider_payments_subscription,priority:1" json:"provider"`
	PaymentID              uint      `gorm:"not null;index:idx_provider_payments_provider_payment,priority:2" json:"payment_id"`
	ProviderChargeID       *string   `gorm:"type:varchar(64);default:null;index:idx_provider_payments_charge,priority:2" json:"charge_id"`
	ProviderSubscriptionID *string   `gorm:"type:varchar(64);default:null;index:idx_provider_payments_subscription,priority:2" json:"subscription_id"`
	Status                 *string   `gorm:"type:varchar(64);default:null" json:"status"`
	Currency               string    `gorm:"type:varchar(8);default:'JPY'" json:"currency"`
	RawJSON                string    `gorm:"type:longtext" json:"-"`
	CreatedAt              time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time `gorm:"not null" json:"updated_at"`
}

func (ProviderPayment) TableName() string {
	return "provider_payments"
}

// ChargeID returns the provider charge id or "".
func (p *ProviderPayment) ChargeID() string {
	if p.ProviderChargeID == nil {
		return ""
	}
	return *p.ProviderChargeID
}

// SubscriptionID returns the provider subscription id or "".
func (p *ProviderPayment) SubscriptionID() string {
	if p.ProviderSubscriptionID == nil {
		return ""
	}
	return *p.ProviderSubscriptionID
}

// StatusValue returns the current status or "".
func (p *ProviderPayment) StatusValue() string {
	if p.Status == nil {
		return ""
	}
	return *p.Status
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
