// middleware/auth.go
package middleware

import (
	"strings"

	"devquest/logger"
	"devquest/utils"

	"github.com/gofiber/fiber/v2"
)

const LocalUserID = "user_id"

// AuthRequired resolves "Authorization: Bearer <jwt>" to the caller's id and
// stores it in c.Locals. Roles are re-read from the store by the services.
func AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if authHeader == "" || !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "No token provided.",
			})
		}

		claims, err := utils.ParseToken(strings.TrimSpace(token))
		if err != nil || claims.UserID == "" {
			logger.Debug().Err(err).Str("path", c.Path()).Msg("rejected bearer token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token.",
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		return c.Next()
	}
}

// GetUserID returns the id set by AuthRequired, or "".
func GetUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
