// handlers/wallet_routes.go
package handlers

import (
	"game-mission-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(user fiber.Router, admin fiber.Router, walletService *services.WalletService) {
	user.Get("/wallet", func(c *fiber.Ctx) error {
		balance, err := walletService.Balance(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"user_id": userID(c), "balance": balance})
	})

	user.Get("/transactions", func(c *fiber.Ctx) error {
		page, size := pagination(c)
		items, total, err := walletService.Transactions(c.UserContext(), userID(c), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"transactions": items,
			"page":         page,
			"total_items":  total,
		})
	})

	type coinsReq struct {
		UserID      string `json:"user_id"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	parse := func(c *fiber.Ctx) (*coinsReq, error) {
		var req coinsReq
		if err := c.BodyParser(&req); err != nil {
			return nil, services.BadRequestError("invalid JSON")
		}
		if req.UserID == "" {
			return nil, services.BadRequestError("user_id is required")
		}
		return &req, nil
	}

	admin.Post("/coins/grant", func(c *fiber.Ctx) error {
		req, err := parse(c)
		if err != nil {
			return respondError(c, err)
		}
		if req.Description == "" {
			req.Description = "Coins granted by an administrator."
		}
		t, err := walletService.AddFunds(c.UserContext(), req.UserID, req.Amount, req.Description)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	admin.Post("/coins/deduct", func(c *fiber.Ctx) error {
		req, err := parse(c)
		if err != nil {
			return respondError(c, err)
		}
		if req.Description == "" {
			req.Description = "Coins deducted by an administrator."
		}
		t, err := walletService.DeductFunds(c.UserContext(), req.UserID, req.Amount, req.Description)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})
}
