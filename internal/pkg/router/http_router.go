package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/zalohook/app/controllers"
	"github.com/ManuelReschke/zalohook/internal/pkg/constants"
	"github.com/ManuelReschke/zalohook/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(middleware.RequestID)

	webhookController := controllers.NewWebhookController(h.deps.Pipeline, h.deps.Config.TrustProxy)

	// StrictRouting is off, so both paths also match with a trailing slash.
	app.Post(constants.WebhookZaloRoute, webhookController.HandleZaloWebhook)
	app.Get(constants.HealthRoute, controllers.HandleHealth)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
