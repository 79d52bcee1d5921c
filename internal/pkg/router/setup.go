package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/zalohook/app/repository"
	"github.com/ManuelReschke/zalohook/internal/pkg/config"
	"github.com/ManuelReschke/zalohook/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/zalohook/internal/pkg/webhook"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the collaborators the routes need. Redis may be nil.
type Deps struct {
	Config   config.Config
	Pipeline *webhook.Pipeline
	Events   repository.WebhookEventRepository
	Counters *counter.Counters
	Redis    *redis.Client
}

func InstallRouter(app *fiber.App, deps Deps) {
	// HttpRouter installs the request ID middleware the API routes log with.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
