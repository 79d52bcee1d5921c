package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const LocalRequestID = "request_id"

// RequestID tags each request with the caller's X-Request-ID or a fresh UUID
// and echoes it in the response.
func RequestID(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	c.Locals(LocalRequestID, id)
	c.Set(fiber.HeaderXRequestID, id)
	return c.Next()
}

// GetRequestID returns the ID set by RequestID, or a new one if the
// middleware did not run.
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalRequestID).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
