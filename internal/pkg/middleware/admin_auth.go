package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/zalohook/internal/pkg/config"
)

// AdminAuth guards operator routes with HTTP basic auth. The password is
// checked against a bcrypt hash, never stored in clear text.
func AdminAuth(cfg config.AdminConfig) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Realm: "zalohook",
		Authorizer: func(user, pass string) bool {
			return CheckAdminCredentials(cfg, user, pass)
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="zalohook"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "admin credentials required",
			})
		},
	})
}

func CheckAdminCredentials(cfg config.AdminConfig, user, pass string) bool {
	if !cfg.Enabled() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.User)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(pass)) == nil
	return userOK && passOK
}
