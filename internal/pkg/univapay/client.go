package univapay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
)

const (
	DefaultBaseURL   = "https://api.univapay.com"
	DefaultTimeout   = 15 * time.Second
	DefaultRetries   = 2
	DefaultZoneID    = "Asia/Tokyo"
	defaultUserAgent = "PayFox-UnivaPay-Client/1.0"

	maxResponseBytes = 2 << 20
)

type Config struct {
	BaseURL   string
	AppToken  string
	AppSecret string
	StoreID   string

	Timeout time.Duration
	Retries int

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
}

// ConfigFromEnv reads the UNIVAPAY_* settings.
func ConfigFromEnv() Config {
	return Config{
		BaseURL:                 strings.TrimSpace(env.GetEnv("UNIVAPAY_BASE_URL", DefaultBaseURL)),
		AppToken:                strings.TrimSpace(env.GetEnv("UNIVAPAY_APP_TOKEN", "")),
		AppSecret:               strings.TrimSpace(env.GetEnv("UNIVAPAY_APP_SECRET", "")),
		StoreID:                 strings.TrimSpace(env.GetEnv("UNIVAPAY_STORE_ID", "")),
		Timeout:                 env.GetSeconds("UNIVAPAY_HTTP_TIMEOUT", DefaultTimeout),
		Retries:                 env.GetInt("UNIVAPAY_HTTP_RETRIES", DefaultRetries),
		BreakerEnabled:          env.GetBool("UNIVAPAY_BREAKER_ENABLED", true),
		BreakerFailureThreshold: uint32(env.GetInt("UNIVAPAY_BREAKER_FAILURES", 5)),
		BreakerTimeout:          env.GetSeconds("UNIVAPAY_BREAKER_OPEN_SECONDS", 30*time.Second),
	}
}

// Sleeper waits between retry attempts. It must return early with the
// context error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithClock overrides the time source used to interpret HTTP-date Retry-After values.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is a thin REST wrapper for UnivaPay server-to-server calls. Card
// entry and tokenization happen in the browser widget; the resulting
// transaction token id is what gets exchanged here.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	sleep      Sleeper
	now        func() time.Time
}

// NewClient validates the configuration and builds a client. A missing app
// token is an error; a missing secret only logs a warning because some
// endpoints accept the token alone.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.AppToken) == "" {
		return nil, ErrMissingAppToken
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		log.Warn("[UnivaPay] UNIVAPAY_APP_SECRET is empty; some endpoints may fail")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.BreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "univapay",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
			},
			IsSuccessful: isBreakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnf("[UnivaPay] circuit breaker %s: %s -> %s", name, from, to)
			},
		})
	}
	return c, nil
}

// NewClientFromEnv builds a client from UNIVAPAY_* settings.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	return NewClient(ConfigFromEnv(), opts...)
}

// NewIdempotencyKey returns a fresh key for one logical user action.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

func (c *Client) StoreID() string {
	return c.cfg.StoreID
}

// ---- charges ----

func (c *Client) CreateCharge(ctx context.Context, p ChargeParams) (*Charge, error) {
	if err := validateAmount(p.Amount); err != nil {
		return nil, err
	}
	body := chargeBody{
		TransactionTokenID: p.TransactionTokenID,
		Amount:             p.Amount,
		Currency:           coerceCurrency(p.Currency),
		Capture:            p.Capture,
		CaptureAt:          p.CaptureAt,
		Metadata:           p.Metadata,
	}
	if p.RedirectEndpoint != "" {
		body.Redirect = &redirectBody{Endpoint: p.RedirectEndpoint}
	}
	if p.ThreeDSMode != "" {
		body.ThreeDS = &threeDSBody{Mode: p.ThreeDSMode}
	}
	data, err := c.call(ctx, "create_charge", http.MethodPost, "/charges", body, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeCharge(data, "")
}

func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	id, err := pathID("charge id", chargeID)
	if err != nil {
		return nil, err
	}
	data, err := c.call(ctx, "get_charge", http.MethodGet, c.scoped("/charges/"+id), nil, "")
	if err != nil {
		return nil, err
	}
	return decodeCharge(data, chargeID)
}

// CaptureCharge captures an authorized charge. amount 0 captures the full
// authorized amount.
func (c *Client) CaptureCharge(ctx context.Context, chargeID string, amount int64, idempotencyKey string) (*Charge, error) {
	id, err := pathID("charge id", chargeID)
	if err != nil {
		return nil, err
	}
	var body any
	if amount != 0 {
		if err := validateAmount(amount); err != nil {
			return nil, err
		}
		body = captureBody{Amount: amount}
	}
	data, err := c.call(ctx, "capture_charge", http.MethodPost, "/charges/"+id+"/capture", body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeCharge(data, chargeID)
}

func (c *Client) CancelCharge(ctx context.Context, chargeID, reason, idempotencyKey string) (*Charge, error) {
	id, err := pathID("charge id", chargeID)
	if err != nil {
		return nil, err
	}
	var body any
	if reason = strings.TrimSpace(reason); reason != "" {
		body = cancelChargeBody{Reason: reason}
	}
	data, err := c.call(ctx, "cancel_charge", http.MethodPost, "/charges/"+id+"/cancel", body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeCharge(data, chargeID)
}

// ---- subscriptions ----

func (c *Client) CreateSubscription(ctx context.Context, p SubscriptionParams) (*Subscription, error) {
	if err := validateAmount(p.Amount); err != nil {
		return nil, err
	}
	period := strings.TrimSpace(p.Period)
	cyclical := strings.TrimSpace(p.CyclicalPeriod)
	switch {
	case period == "" && cyclical == "":
		return nil, invalidInput("either period or cyclical_period must be specified for subscription")
	case period != "" && cyclical != "":
		return nil, invalidInput("only one of period or cyclical_period may be specified for subscription")
	}

	zone := strings.TrimSpace(p.ZoneID)
	if zone == "" {
		zone = DefaultZoneID
	}
	body := subscriptionBody{
		TransactionTokenID: p.TransactionTokenID,
		Amount:             p.Amount,
		Currency:           coerceCurrency(p.Currency),
		ScheduleSettings:   scheduleSettings{ZoneID: zone, StartOn: p.StartOn},
		Period:             period,
		CyclicalPeriod:     cyclical,
		Metadata:           p.Metadata,
	}
	if p.RedirectEndpoint != "" {
		body.Redirect = &redirectBody{Endpoint: p.RedirectEndpoint}
	}
	if p.ThreeDSMode != "" {
		body.ThreeDS = &threeDSBody{Mode: p.ThreeDSMode}
	}
	data, err := c.call(ctx, "create_subscription", http.MethodPost, "/subscriptions", body, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeSubscription(data, "")
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	id, err := pathID("subscription id", subscriptionID)
	if err != nil {
		return nil, err
	}
	data, err := c.call(ctx, "get_subscription", http.MethodGet, c.scoped("/subscriptions/"+id), nil, "")
	if err != nil {
		return nil, err
	}
	return decodeSubscription(data, subscriptionID)
}

// CancelSubscription stops a subscription. terminationMode is "immediate",
// "on_next_payment" or empty for the gateway default.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, terminationMode, idempotencyKey string) (*Subscription, error) {
	id, err := pathID("subscription id", subscriptionID)
	if err != nil {
		return nil, err
	}
	var body any
	if terminationMode = strings.TrimSpace(terminationMode); terminationMode != "" {
		body = cancelSubscriptionBody{ScheduleSettings: scheduleSettings{TerminationMode: terminationMode}}
	}
	data, err := c.call(ctx, "cancel_subscription", http.MethodPost, "/subscriptions/"+id+"/cancel", body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return decodeSubscription(data, subscriptionID)
}

// ---- transport ----

// call runs one logical request through the circuit breaker and records metrics.
func (c *Client) call(ctx context.Context, op, method, path string, body any, idempotencyKey string) ([]byte, error) {
	start := time.Now()
	var (
		data []byte
		err  error
	)
	if c.breaker != nil {
		data, err = c.breaker.Execute(func() ([]byte, error) {
			return c.do(ctx, op, method, path, body, idempotencyKey)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s", ErrCircuitOpen, op)
		}
	} else {
		data, err = c.do(ctx, op, method, path, body, idempotencyKey)
	}
	metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.GatewayRequestsTotal.WithLabelValues(op, outcome(err)).Inc()
	return data, err
}

// do performs the request with bounded retries. The idempotency key is the
// same on every attempt.
func (c *Client) do(ctx context.Context, op, method, path string, body any, idempotencyKey string) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
	}
	target := c.cfg.BaseURL + path

	for attempt := 1; ; attempt++ {
		req, err := c.newRequest(ctx, method, target, payload, idempotencyKey)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if attempt <= c.cfg.Retries {
				metrics.GatewayRetriesTotal.WithLabelValues(op, "network").Inc()
				log.Warnf("[UnivaPay] %s attempt %d network error: %v", op, attempt, err)
				if err := c.sleep(ctx, time.Duration(attempt)*400*time.Millisecond); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &APIError{Message: "network error calling " + target, Err: err}
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, fmt.Errorf("read %s response: %w", op, readErr)
			}
			if len(data) == 0 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
				return nil, nil
			}
			return data, nil
		}

		if isRetryableStatus(resp.StatusCode) && attempt <= c.cfg.Retries {
			delay := time.Duration(attempt) * 500 * time.Millisecond
			if ra, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok && ra > delay {
				delay = ra
			}
			metrics.GatewayRetriesTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
			log.Warnf("[UnivaPay] %s attempt %d got %d, retrying in %s", op, attempt, resp.StatusCode, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, &APIError{
			Message: fmt.Sprintf("UnivaPay API error %d for %s", resp.StatusCode, path),
			Status:  resp.StatusCode,
			Body:    parseBody(data),
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, target string, payload []byte, idempotencyKey string) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Authorization", c.authorization())
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req, nil
}

// authorization builds "Bearer {secret}.{token}", or the bare token when no
// secret is configured.
func (c *Client) authorization() string {
	if c.cfg.AppSecret != "" {
		return "Bearer " + c.cfg.AppSecret + "." + c.cfg.AppToken
	}
	return "Bearer " + c.cfg.AppToken
}

func (c *Client) scoped(path string) string {
	if c.cfg.StoreID == "" {
		return path
	}
	return "/stores/" + url.PathEscape(c.cfg.StoreID) + path
}

// ---- helpers ----

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// isBreakerSuccess keeps request-level rejections (4xx other than 429) and
// caller cancellation from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == 0 {
			return apiErr.Err == nil
		}
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
	}
	return false
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &apiErr) && apiErr.Status > 0:
		return "rejected"
	default:
		return "error"
	}
}

func parseBody(data []byte) any {
	var v any
	if len(data) > 0 && json.Unmarshal(data, &v) == nil {
		return v
	}
	return string(data)
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return invalidInput("amount must be a positive integer (in minor units, e.g., JPY)")
	}
	return nil
}

func coerceCurrency(cur string) string {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if cur == "" {
		return "JPY"
	}
	return cur
}

func pathID(name, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalidInput(name + " is required")
	}
	return url.PathEscape(id), nil
}

func decodeCharge(data []byte, fallbackID string) (*Charge, error) {
	out := &Charge{ID: fallbackID}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	out.Raw = json.RawMessage(data)
	return out, nil
}

func decodeSubscription(data []byte, fallbackID string) (*Subscription, error) {
	out := &Subscription{ID: fallbackID}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	out.Raw = json.RawMessage(data)
	return out, nil
}
