package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

type ApiRouter struct {
	api *controllers.API
	cfg Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	origins := h.cfg.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	limit := h.cfg.LimiterMax
	if limit <= 0 {
		limit = 120
	}

	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     "GET,POST,OPTIONS",
			AllowHeaders:     "Content-Type,Authorization",
			AllowCredentials: false,
		}),
		limiter.New(limiter.Config{
			Max:        limit,
			Expiration: time.Minute,
			Storage:    h.cfg.LimiterStorage,
			// the gateway retries webhooks on 429, so never throttle them
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/api/univapay/webhook"
			},
		}),
	)

	api.Post("/login", h.api.HandleLogin)
	api.Post("/univapay/webhook", middleware.RequireWebhookAuth(h.cfg.WebhookSecret), h.api.HandleUnivapayWebhook)

	authed := api.Group("", middleware.RequireAPISessionAuth(h.api.SecretKey()), middleware.RequireLoggedIn)
	authed.Get("/me", h.api.HandleMe)
	authed.Post("/purchase", h.api.HandlePurchase)
	authed.Post("/subscribe", h.api.HandleSubscribe)
	authed.Get("/payments", h.api.HandleListPayments)
	authed.Post("/payments/:id/capture", h.api.HandleCapturePayment)
	authed.Post("/payments/:id/cancel", h.api.HandleCancelPayment)
	authed.Post("/checkout/charge", h.api.HandleCheckoutCharge)
	authed.Post("/checkout/subscription", h.api.HandleCheckoutSubscription)
}

func NewApiRouter(api *controllers.API, cfg Config) *ApiRouter {
	return &ApiRouter{api: api, cfg: cfg}
}
