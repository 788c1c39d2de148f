package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewRouter builds the fiber app with the transaction routes mounted.
func NewRouter(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1/transactions")
	api.Post("/deposit", h.Deposit)
	api.Post("/withdraw", h.Withdraw)
	api.Post("/exchange", h.Exchange)
	api.Get("/balance/:userId", h.GetBalance)
	api.Get("/status/:operationId", h.GetOperationStatus)

	return app
}
