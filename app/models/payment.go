package models

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	PaymentKindProduct      = "product"
	PaymentKindSubscription = "subscription"
)

var (
	ErrPaymentKindMismatch = errors.New("exactly one of item_name or plan must be set, matching kind")
	paymentValidator       = validator.New()
)

// Payment is a purchase or subscription enrollment recorded locally. Rows are
// written once and never updated or deleted.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	User      string    `gorm:"type:varchar(64);not null;index:idx_payments_user_created,priority:1" json:"user" validate:"required,max=64"`
	Kind      string    `gorm:"type:varchar(32);not null" json:"kind" validate:"oneof=product subscription"`
	ItemName  *string   `gorm:"type:varchar(255);default:null" json:"item_name" validate:"omitempty,max=255"`
	AmountJPY int64     `gorm:"not null" json:"amount_jpy" validate:"gt=0"`
	Plan      *string   `gorm:"type:varchar(32);default:null" json:"plan" validate:"omitempty,max=32"`
	CreatedAt time.Time `gorm:"not null;index:idx_payments_user_created,priority:2" json:"created_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// NewProductPayment builds a product payment for the given user.
func NewProductPayment(user, itemName string, amount int64) *Payment {
	name := strings.TrimSpace(itemName)
	return &Payment{
		User:      user,
		Kind:      PaymentKindProduct,
		ItemName:  &name,
		AmountJPY: amount,
	}
}

// NewSubscriptionPayment builds a subscription payment for the given user.
func NewSubscriptionPayment(user, plan string, amount int64) *Payment {
	p := plan
	return &Payment{
		User:      user,
		Kind:      PaymentKindSubscription,
		Plan:      &p,
		AmountJPY: amount,
	}
}

// Validate checks field constraints and the kind/item_name/plan invariant.
func (p *Payment) Validate() error {
	if err := paymentValidator.Struct(p); err != nil {
		return err
	}
	hasItem := p.ItemName != nil && strings.TrimSpace(*p.ItemName) != ""
	hasPlan := p.Plan != nil && strings.TrimSpace(*p.Plan) != ""
	switch p.Kind {
	case PaymentKindProduct:
		if !hasItem || hasPlan {
			return ErrPaymentKindMismatch
		}
	case PaymentKindSubscription:
		if !hasPlan || hasItem {
			return ErrPaymentKindMismatch
		}
	}
	return nil
}

// BeforeCreate stamps the creation time in UTC and rejects invalid rows.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return p.Validate()
}
