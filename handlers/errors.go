package handlers

import (
	"errors"

	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP statuses. Anything not raised
// deliberately by a service is reported as a generic 500.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrBadRequest):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientFunds):
		status = fiber.StatusUnprocessableEntity
	}

	msg, ok := services.UserMessage(err)
	if !ok || status == fiber.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("❌ Request failed")
		msg = "internal server error"
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func pagination(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("size", 20)
}
