// handlers/system_routes.go
package handlers

import (
	"quest-service/apperr"
	"quest-service/database"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func SetupSystemRoutes(app *fiber.App, db *gorm.DB, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := database.Ping(db); err != nil {
			return apperr.Internal(err)
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
