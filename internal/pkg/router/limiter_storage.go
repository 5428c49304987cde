package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// NewLimiterStorage shares rate-limit counters across instances through
// Redis, on a separate database from the job queue. It returns nil, and the
// limiter falls back to memory, when Redis is unreachable.
func NewLimiterStorage() fiber.Storage {
	if err := cache.Ping(2 * time.Second); err != nil {
		log.Warnf("[Router] rate limiter uses in-memory storage: %v", err)
		return nil
	}
	cacheClient := cache.GetClient()

	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	addr := cacheClient.Options().Addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	// Prefer password from the underlying client if present
	if p := cacheClient.Options().Password; p != "" {
		password = p
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetInt("LIMITER_REDIS_DB", 2),
		Reset:    false,
	})
}
