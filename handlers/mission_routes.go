// handlers/mission_routes.go
package handlers

import (
	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMissionRoutes(missions fiber.Router, missionService *services.MissionService) {
	missions.Get("", func(c *fiber.Ctx) error {
		missions, err := missionService.ListForUser(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(missions)
	})

	missions.Get("/:id/state", func(c *fiber.Ctx) error {
		state, err := missionService.State(c.UserContext(), userID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"mission_id": c.Params("id"), "state": state})
	})

	// Rewards are granted asynchronously; the response only confirms completion.
	missions.Post("/:id/complete", func(c *fiber.Ctx) error {
		result, err := missionService.Complete(c.UserContext(), userID(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"success":        true,
			"new_completion": result.NewCompletion,
		})
	})
}
