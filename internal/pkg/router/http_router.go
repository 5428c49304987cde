package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/PayFox/app/controllers"
)

type HttpRouter struct {
	api *controllers.API
	cfg Config
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.api.HandleHealthz)
	app.Get("/db/health", h.api.HandleDBHealth)

	// prometheus metrics, disabled without a password
	if h.cfg.MetricsPassword == "" {
		log.Warn("[Router] METRICS_PASSWORD is empty; /metrics is disabled")
		return
	}
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.cfg.MetricsUser: h.cfg.MetricsPassword,
		},
	}), adaptor.HTTPHandler(promhttp.Handler()))
}

func NewHttpRouter(api *controllers.API, cfg Config) *HttpRouter {
	return &HttpRouter{api: api, cfg: cfg}
}
