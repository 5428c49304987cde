package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/events"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Payment{}, &models.ProviderPayment{}, &models.WebhookEvent{}))
	return db
}

type fakeGateway struct {
	mu sync.Mutex

	chargeKeys       []string
	chargeParams     []univapay.ChargeParams
	subscriptionArgs []univapay.SubscriptionParams
	getChargeCalls   int
	captured         []int64
	canceledCharges  []string
	canceledSubs     []string

	createChargeErr error
	createSubErr    error
	getChargeErr    error
	chargeStatus    string
	pollStatus      string
	nextID          int
}

func (g *fakeGateway) CreateCharge(ctx context.Context, p univapay.ChargeParams) (*univapay.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeKeys = append(g.chargeKeys, p.IdempotencyKey)
	g.chargeParams = append(g.chargeParams, p)
	if g.createChargeErr != nil {
		return nil, g.createChargeErr
	}
	g.nextID++
	status := g.chargeStatus
	if status == "" {
		status = models.ProviderStatusPending
	}
	id := fmt.Sprintf("ch_%d", g.nextID)
	return &univapay.Charge{
		ID:              id,
		Status:          status,
		Mode:            "test",
		ChargedCurrency: "jpy",
		Raw:             []byte(fmt.Sprintf(`{"id":%q,"status":%q}`, id, status)),
	}, nil
}

func (g *fakeGateway) GetCharge(ctx context.Context, chargeID string) (*univapay.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getChargeCalls++
	if g.getChargeErr != nil {
		return nil, g.getChargeErr
	}
	return &univapay.Charge{
		ID:     chargeID,
		Status: g.pollStatus,
		Raw:    []byte(fmt.Sprintf(`{"id":%q,"status":%q,"polled":true}`, chargeID, g.pollStatus)),
	}, nil
}

func (g *fakeGateway) CaptureCharge(ctx context.Context, chargeID string, amount int64, key string) (*univapay.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captured = append(g.captured, amount)
	return &univapay.Charge{ID: chargeID, Status: models.ProviderStatusSuccessful, Raw: []byte(`{"status":"successful"}`)}, nil
}

func (g *fakeGateway) CancelCharge(ctx context.Context, chargeID, reason, key string) (*univapay.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceledCharges = append(g.canceledCharges, chargeID)
	return &univapay.Charge{ID: chargeID, Status: models.ProviderStatusCanceled}, nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, p univapay.SubscriptionParams) (*univapay.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptionArgs = append(g.subscriptionArgs, p)
	if g.createSubErr != nil {
		return nil, g.createSubErr
	}
	g.nextID++
	return &univapay.Subscription{
		ID:       fmt.Sprintf("sub_%d", g.nextID),
		Status:   "unverified",
		Mode:     "test",
		Currency: "JPY",
		Period:   p.Period,
	}, nil
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*univapay.Subscription, error) {
	return &univapay.Subscription{ID: subscriptionID, Status: models.ProviderStatusCurrent}, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID, terminationMode, key string) (*univapay.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceledSubs = append(g.canceledSubs, subscriptionID)
	return &univapay.Subscription{ID: subscriptionID, Status: models.ProviderStatusCanceled}, nil
}

type scheduledPoll struct {
	task  PollTask
	delay time.Duration
}

type fakeScheduler struct {
	mu    sync.Mutex
	polls []scheduledPoll
	err   error
}

func (s *fakeScheduler) SchedulePoll(ctx context.Context, task PollTask, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.polls = append(s.polls, scheduledPoll{task: task, delay: delay})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.StatusChanged
}

func (p *fakePublisher) PublishStatusChanged(ctx context.Context, evt events.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeArchiver struct {
	archived []uint
}

func (a *fakeArchiver) ArchiveWebhook(ctx context.Context, evt *models.WebhookEvent) error {
	a.archived = append(a.archived, evt.ID)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	repo      Repository
	gateway   *fakeGateway
	scheduler *fakeScheduler
	publisher *fakePublisher
	svc       *Service
}

var testPoll = PollConfig{Enabled: true, After: 30 * time.Second, RetryAfter: 60 * time.Second}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:        db,
		repo:      NewRepository(db),
		gateway:   &fakeGateway{},
		scheduler: &fakeScheduler{},
		publisher: &fakePublisher{},
	}
	env.svc = NewService(env.repo, Deps{
		Gateway:   env.gateway,
		Scheduler: env.scheduler,
		Publisher: env.publisher,
		Poll:      testPoll,
	})
	return env
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}
