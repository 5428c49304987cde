package billing

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
)

// Repository provides the DB operations used by the checkout service and the
// status reconciler.
type Repository interface {
	CreatePayment(payment *models.Payment) error
	CreatePaymentWithProvider(payment *models.Payment, provider *models.ProviderPayment) error
	GetPaymentByID(id uint) (*models.Payment, error)
	ListPaymentsByUser(user string) ([]models.Payment, error)
	ListProviderPaymentsByPaymentIDs(provider string, paymentIDs []uint) ([]models.ProviderPayment, error)
	GetProviderPaymentByID(id uint) (*models.ProviderPayment, error)
	GetProviderPaymentByPaymentID(provider string, paymentID uint) (*models.ProviderPayment, error)
	GetProviderPaymentByChargeID(provider, chargeID string) (*models.ProviderPayment, error)
	GetProviderPaymentBySubscriptionID(provider, subscriptionID string) (*models.ProviderPayment, error)
	UpdateProviderPaymentStatus(id uint, update StatusUpdate, at time.Time) (bool, error)
	CreateWebhookEvent(event *models.WebhookEvent) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// CreatePaymentWithProvider inserts the payment and its provider record in one
// transaction; the provider row gets the new payment id.
func (r *gormRepository) CreatePaymentWithProvider(payment *models.Payment, provider *models.ProviderPayment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		provider.PaymentID = payment.ID
		return tx.Create(provider).Error
	})
}

func (r *gormRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListPaymentsByUser(user string) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.Where("user = ?", user).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) ListProviderPaymentsByPaymentIDs(provider string, paymentIDs []uint) ([]models.ProviderPayment, error) {
	if len(paymentIDs) == 0 {
		return nil, nil
	}
	var out []models.ProviderPayment
	err := r.db.Where("provider = ? AND payment_id IN ?", provider, paymentIDs).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *gormRepository) GetProviderPaymentByID(id uint) (*models.ProviderPayment, error) {
	var pp models.ProviderPayment
	if err := r.db.First(&pp, id).Error; err != nil {
		return nil, err
	}
	return &pp, nil
}

func (r *gormRepository) GetProviderPaymentByPaymentID(provider string, paymentID uint) (*models.ProviderPayment, error) {
	var pp models.ProviderPayment
	err := r.db.Where("provider = ? AND payment_id = ?", provider, paymentID).First(&pp).Error
	if err != nil {
		return nil, err
	}
	return &pp, nil
}

func (r *gormRepository) GetProviderPaymentByChargeID(provider, chargeID string) (*models.ProviderPayment, error) {
	var pp models.ProviderPayment
	err := r.db.Where("provider = ? AND provider_charge_id = ?", provider, chargeID).First(&pp).Error
	if err != nil {
		return nil, err
	}
	return &pp, nil
}

func (r *gormRepository) GetProviderPaymentBySubscriptionID(provider, subscriptionID string) (*models.ProviderPayment, error) {
	var pp models.ProviderPayment
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, subscriptionID).First(&pp).Error
	if err != nil {
		return nil, err
	}
	return &pp, nil
}

// UpdateProviderPaymentStatus is a single-row UPDATE scoped by primary key.
// It reports whether a row matched.
func (r *gormRepository) UpdateProviderPaymentStatus(id uint, update StatusUpdate, at time.Time) (bool, error) {
	fields := map[string]interface{}{
		"updated_at": at,
	}
	if update.Status != "" {
		fields["status"] = update.Status
	}
	if update.RawJSON != nil {
		fields["raw_json"] = *update.RawJSON
	}
	res := r.db.Model(&models.ProviderPayment{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateWebhookEvent(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}
