package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"

	apiv1 "github.com/ManuelReschke/zalohook/internal/api/v1"
	"github.com/ManuelReschke/zalohook/internal/pkg/cache"
	"github.com/ManuelReschke/zalohook/internal/pkg/constants"
	"github.com/ManuelReschke/zalohook/internal/pkg/middleware"
)

const (
	apiRequestsPerMinute = 60
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	if !h.deps.Config.Admin.Enabled() {
		log.Info("[Router] ADMIN_PASSWORD_HASH not set, inspection API disabled")
		return
	}

	api := app.Group(constants.APIRoute, middleware.AdminAuth(h.deps.Config.Admin), limiter.New(h.limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "zalohook inspection api",
		})
	})

	// API v1 routes
	v1 := api.Group(constants.APIv1Route)
	var rdb redis.Cmdable
	if h.deps.Redis != nil {
		rdb = h.deps.Redis
	}
	apiServer := apiv1.NewAPIServer(h.deps.Events, h.deps.Counters, rdb)
	apiv1.RegisterHandlers(v1, apiServer)
}

func (h ApiRouter) limiterConfig() limiter.Config {
	cfg := limiter.Config{
		Max:        apiRequestsPerMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limit_exceeded"})
		},
	}
	// Redis storage shares the window across instances; without a reachable
	// cache the limiter keeps its counters in memory.
	if h.deps.Redis != nil && cache.Available(context.Background()) {
		cfg.Storage = cache.NewFiberStorage(cache.LimiterDatabase)
	} else {
		log.Warn("[Router] cache unavailable, inspection API limiter uses memory storage")
	}
	return cfg
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
