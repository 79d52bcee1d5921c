package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandleHealth is a liveness probe; it checks no dependencies.
func HandleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
