package controllers

import (
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/security"
)

// API holds the dependencies shared by the JSON handlers.
type API struct {
	billing     *billing.Service
	db          *gorm.DB
	credentials security.Credentials
	secretKey   string
	appPort     string
	dbName      string
	now         func() time.Time
}

type APIOptions struct {
	Billing     *billing.Service
	DB          *gorm.DB
	Credentials security.Credentials
	SecretKey   string
	AppPort     string
	DBName      string
	Now         func() time.Time
}

func NewAPI(opts APIOptions) *API {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &API{
		billing:     opts.Billing,
		db:          opts.DB,
		credentials: opts.Credentials,
		secretKey:   opts.SecretKey,
		appPort:     opts.AppPort,
		dbName:      opts.DBName,
		now:         opts.Now,
	}
}

// SecretKey is the session token signing key the auth middleware must use.
func (a *API) SecretKey() string {
	return a.secretKey
}

func (a *API) portValue() interface{} {
	if n, err := strconv.Atoi(a.appPort); err == nil {
		return n
	}
	return a.appPort
}
