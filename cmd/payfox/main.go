package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/auditarchive"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/events"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
	"github.com/ManuelReschke/PayFox/internal/pkg/security"
	"github.com/ManuelReschke/PayFox/internal/pkg/univapay"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Print("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "5000")))
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the stack and returns the app plus a function that
// stops the background workers and closes the event publisher.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	basePath := findBasePath()

	// gateway client is optional; checkout answers 500 without it
	var gateway billing.Gateway
	client, err := univapay.NewClientFromEnv()
	if err != nil {
		log.Printf("[UnivaPay] Init warning: %v", err)
	} else {
		log.Print("[UnivaPay] Client initialized")
		gateway = client
	}

	publisher := events.NewPublisherFromEnv()

	var archiver billing.WebhookArchiver
	if cfg, err := auditarchive.LoadConfig(); err != nil {
		log.Printf("[Archive] Webhook archive disabled: %v", err)
	} else if cfg.Enabled {
		a, err := auditarchive.NewArchiver(context.Background(), cfg)
		if err != nil {
			log.Printf("[Archive] Webhook archive disabled: %v", err)
		} else {
			archiver = a
		}
	}

	manager := jobqueue.GetManager()
	svc := billing.NewServiceFromDB(database.GetDB(), billing.Deps{
		Gateway:   gateway,
		Scheduler: billing.NewQueuePollScheduler(manager.GetQueue()),
		Publisher: publisher,
		Archiver:  archiver,
		Poll:      billing.PollConfigFromEnv(),
	})
	billing.RegisterPollHandler(manager.GetQueue(), svc.Reconciler())
	manager.Start()

	api := controllers.NewAPI(controllers.APIOptions{
		Billing:     svc,
		DB:          database.GetDB(),
		Credentials: security.CredentialsFromEnv(),
		SecretKey:   security.SecretKey(),
		AppPort:     env.GetEnv("APP_PORT", "5000"),
		DBName:      database.Name(),
	})

	app := fiber.New(fiber.Config{
		AppName:   "PayFox",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, api, router.Config{
		AllowedOrigins:  env.GetEnv("ALLOWED_ORIGINS", "*"),
		WebhookSecret:   env.GetEnv("UNIVAPAY_WEBHOOK_AUTH", ""),
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		LimiterStorage:  router.NewLimiterStorage(),
		LimiterMax:      env.GetInt("API_RATE_LIMIT_PER_MINUTE", 120),
	})

	shutdown := func() {
		manager.Stop()
		if err := publisher.Close(); err != nil {
			log.Printf("[Events] close: %v", err)
		}
	}
	return app, shutdown
}

func findBasePath() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/payfox to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	panic("Could not find project root directory")
}
