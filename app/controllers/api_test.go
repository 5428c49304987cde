package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
	"github.com/ManuelReschke/PayFox/internal/pkg/security"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

const (
	testSecret  = "test-secret"
	testWebhook = "whsec_test"
)

// fakeUnivapay is an in-memory stand-in for the UnivaPay REST API.
type fakeUnivapay struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []map[string]interface{}
	// chargeStatus is returned by POST /charges; failWith short-circuits every call.
	chargeStatus string
	failWith     int
	failBody     string
}

func (f *fakeUnivapay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]interface{}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, body)

	if f.failWith != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.failWith)
		_, _ = io.WriteString(w, f.failBody)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/charges":
		status := f.chargeStatus
		if status == "" {
			status = "pending"
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"id":"ch_%d","status":%q,"mode":"test","charged_currency":"JPY","redirect":{"endpoint":"https://shop.example/3ds"}}`, len(f.requests), status)
	case r.Method == http.MethodPost && r.URL.Path == "/subscriptions":
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"id":"sub_%d","status":"unverified","mode":"test","currency":"JPY","next_payment":{"due_date":"2026-11-17"}}`, len(f.requests))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/capture"):
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"successful"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"canceled"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"NOT_FOUND"}`)
	}
}

type testServer struct {
	app     *fiber.App
	db      *gorm.DB
	gateway *fakeUnivapay
	token   string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Payment{}, &models.ProviderPayment{}, &models.WebhookEvent{}))
	return db
}

// newTestServer wires the handlers the same way the router does, with a
// real gateway client pointed at a fake UnivaPay. withGateway=false leaves
// the gateway unconfigured.
func newTestServer(t *testing.T, withGateway bool) *testServer {
	t.Helper()
	db := newTestDB(t)
	fake := &fakeUnivapay{}

	var gateway billing.Gateway
	if withGateway {
		srv := httptest.NewServer(fake)
		t.Cleanup(srv.Close)
		client, err := univapay.NewClient(univapay.Config{
			BaseURL:   srv.URL,
			AppToken:  "app_token",
			AppSecret: "app_secret",
			StoreID:   "store_1",
			Retries:   0,
		}, univapay.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))
		require.NoError(t, err)
		gateway = client
	}

	svc := billing.NewServiceFromDB(db, billing.Deps{Gateway: gateway})
	api := NewAPI(APIOptions{
		Billing:     svc,
		DB:          db,
		Credentials: security.Credentials{Username: "Nayeem", Password: "password"},
		SecretKey:   testSecret,
		AppPort:     "5000",
		DBName:      "poc.db",
	})

	app := fiber.New()
	app.Get("/healthz", api.HandleHealthz)
	app.Get("/db/health", api.HandleDBHealth)
	app.Post("/api/login", api.HandleLogin)
	app.Post("/api/univapay/webhook", middleware.RequireWebhookAuth(testWebhook), api.HandleUnivapayWebhook)
	authed := app.Group("/api", middleware.RequireAPISessionAuth(testSecret))
	authed.Get("/me", api.HandleMe)
	authed.Post("/purchase", api.HandlePurchase)
	authed.Post("/subscribe", api.HandleSubscribe)
	authed.Get("/payments", api.HandleListPayments)
	authed.Post("/payments/:id/capture", api.HandleCapturePayment)
	authed.Post("/payments/:id/cancel", api.HandleCancelPayment)
	authed.Post("/checkout/charge", api.HandleCheckoutCharge)
	authed.Post("/checkout/subscription", api.HandleCheckoutSubscription)

	token, err := security.IssueSessionToken("Nayeem", testSecret, time.Now())
	require.NoError(t, err)

	return &testServer{app: app, db: db, gateway: fake, token: token}
}

func (s *testServer) do(t *testing.T, method, path, auth string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func (s *testServer) authed(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	return s.do(t, method, path, "Bearer "+s.token, body)
}

func (s *testServer) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(model).Count(&n).Error)
	return n
}
