// handlers/routes.go
package handlers

import (
	"game-mission-service/middleware"
	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
)

// Services is everything the HTTP layer talks to.
type Services struct {
	Users         *services.UserService
	Wallet        *services.WalletService
	Leveling      *services.LevelingService
	Titles        *services.TitleService
	Missions      *services.MissionService
	Notifications *services.NotificationService
}

// SetupRoutes mounts every route. The gateway forwards /api/v1/game/... here
// with the prefix stripped.
func SetupRoutes(app *fiber.App, svc Services) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Player routes provision the caller on first sight; admin routes only act on
	// users that already exist.
	player := []fiber.Handler{middleware.UserContextMiddleware(), middleware.EnsureUserMiddleware(svc.Users)}
	missions := app.Group("/missions", player...)
	user := app.Group("/user", player...)
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	SetupMissionRoutes(missions, svc.Missions)
	SetupWalletRoutes(user, admin, svc.Wallet)
	SetupProgressionRoutes(user, admin, svc.Leveling, svc.Titles, svc.Users)
	SetupNotificationRoutes(user, svc.Notifications)
}
