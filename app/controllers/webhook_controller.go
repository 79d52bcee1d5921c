package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/zalohook/internal/pkg/middleware"
	"github.com/ManuelReschke/zalohook/internal/pkg/webhook"
)

// WebhookController adapts fiber requests to the ingest pipeline.
type WebhookController struct {
	pipeline   *webhook.Pipeline
	trustProxy bool
}

func NewWebhookController(pipeline *webhook.Pipeline, trustProxy bool) *WebhookController {
	return &WebhookController{pipeline: pipeline, trustProxy: trustProxy}
}

// HandleZaloWebhook receives one OA callback. Duplicates get the same
// acknowledgment as first deliveries.
func (w *WebhookController) HandleZaloWebhook(c *fiber.Ctx) error {
	req := webhook.InboundRequest{
		ID:         middleware.GetRequestID(c),
		Body:       append([]byte(nil), c.BodyRaw()...),
		Headers:    requestHeaders(c),
		ClientIP:   ClientIP(c, w.trustProxy),
		ReceivedAt: time.Now().UTC(),
	}

	out := w.pipeline.Handle(c.UserContext(), req)
	return writeOutcome(c, out)
}

func writeOutcome(c *fiber.Ctx, out webhook.Outcome) error {
	c.Status(out.Status)
	switch out.State {
	case webhook.StateAcknowledged:
		return c.JSON(fiber.Map{"status": "received", "event_id": out.EventID})
	case webhook.StateRateLimited:
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(out.RetryAfter))
		return c.JSON(fiber.Map{"error": "rate_limit_exceeded", "retry_after": out.RetryAfter})
	case webhook.StateUnauthorized:
		return c.JSON(fiber.Map{"error": "unauthorized"})
	case webhook.StateMalformedPayload:
		return c.JSON(fiber.Map{"error": "invalid_payload"})
	case webhook.StatePayloadTooLarge:
		return c.JSON(fiber.Map{"error": "payload_too_large"})
	default:
		return c.JSON(fiber.Map{"error": "storage_unavailable"})
	}
}
