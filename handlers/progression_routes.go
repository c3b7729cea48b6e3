// handlers/progression_routes.go
package handlers

import (
	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(user fiber.Router, admin fiber.Router, levelingService *services.LevelingService, titleService *services.TitleService, userService *services.UserService) {
	user.Get("/level", func(c *fiber.Ctx) error {
		status, err := levelingService.CurrentLevel(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(status)
	})

	user.Get("/titles", func(c *fiber.Ctx) error {
		titles, err := titleService.UserTitles(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, err)
		}

		response := make([]fiber.Map, 0, len(titles))
		for _, ut := range titles {
			item := fiber.Map{
				"id":         ut.ID,
				"title_id":   ut.TitleID,
				"awarded_at": ut.AwardedAt,
			}
			if ut.Title != nil {
				item["name"] = ut.Title.Name
				item["slug"] = ut.Title.Slug
				item["description"] = ut.Title.Description
				item["icon"] = ut.Title.Icon
				item["rarity"] = ut.Title.Rarity
			}
			response = append(response, item)
		}
		return c.JSON(response)
	})

	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id"`
			XP     int64  `json:"xp"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
			})
		}
		if req.UserID == "" {
			return respondError(c, services.BadRequestError("user_id is required"))
		}

		reached, err := levelingService.AwardExperience(c.UserContext(), req.UserID, req.XP)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"message":        "XP granted successfully",
			"user_id":        req.UserID,
			"xp":             req.XP,
			"levels_reached": reached,
		})
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		users, err := userService.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(users)
	})
}
