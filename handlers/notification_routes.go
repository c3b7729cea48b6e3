// handlers/notification_routes.go
package handlers

import (
	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(user fiber.Router, notificationService *services.NotificationService) {
	user.Get("/notifications", func(c *fiber.Ctx) error {
		page, size := pagination(c)
		items, total, err := notificationService.List(c.UserContext(), userID(c), page, size, c.QueryBool("unread", false))
		if err != nil {
			return respondError(c, err)
		}
		unread, err := notificationService.UnreadCount(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"notifications": items,
			"page":          page,
			"total_items":   total,
			"unread":        unread,
		})
	})

	// registered before /:id/read so "read-all" is not taken as an id
	user.Patch("/notifications/read-all", func(c *fiber.Ctx) error {
		n, err := notificationService.MarkAllRead(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	user.Patch("/notifications/:id/read", func(c *fiber.Ctx) error {
		n, err := notificationService.MarkRead(c.UserContext(), userID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(n)
	})

	user.Get("/notifications/stream", notificationService.StreamUserNotificationsSSE)
}
