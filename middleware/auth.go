// middleware/auth.go
package middleware

import (
	"slices"
	"strings"

	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.WithField("path", c.Path()).Warn("❌ [USER_CTX] X-User-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		log.WithFields(log.Fields{
			"user_id": userID,
			"roles":   roles,
			"path":    c.Path(),
		}).Debug("👤 [USER_CTX] user context attached")

		return c.Next()
	}
}

// EnsureUserMiddleware provisions the local user row and wallet the first time a
// gateway identity is seen. Must run after UserContextMiddleware.
func EnsureUserMiddleware(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if err := users.EnsureUser(c.UserContext(), userID, c.Get("X-Username")); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("❌ [USER_CTX] provisioning failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}
		return c.Next()
	}
}

// RequireRole rejects requests whose gateway roles do not include role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		if !slices.Contains(roles, role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient role",
			})
		}
		return c.Next()
	}
}
