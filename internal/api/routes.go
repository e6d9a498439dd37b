package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")
	v1.Post("/users/register", h.Register)
	v1.Post("/users/login", h.Login)
	v1.Post("/users/logout", h.Logout)

	v1.Get("/rates/:from/:to", h.GetRate)
	v1.Post("/rates/refresh", h.RefreshRates)

	v1.Get("/portfolio", h.GetPortfolio)
	v1.Post("/trades/buy", h.Buy)
	v1.Post("/trades/sell", h.Sell)
}
