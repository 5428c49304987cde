package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries what the routers need beyond the handlers themselves.
type Config struct {
	AllowedOrigins  string
	WebhookSecret   string
	MetricsUser     string
	MetricsPassword string
	// LimiterStorage backs the /api rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	LimiterMax     int
}

func InstallRouter(app *fiber.App, api *controllers.API, cfg Config) {
	// Health and metrics first so they bypass the /api limiter.
	setup(app, NewHttpRouter(api, cfg), NewApiRouter(api, cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
