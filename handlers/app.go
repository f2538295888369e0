// handlers/app.go
package handlers

import (
	"strings"

	"quest-service/middleware"
	"quest-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type AppOptions struct {
	GatewayToken   string
	AllowedOrigins []string
	// AccessLog turns on the per-request logger.
	AccessLog bool
}

// Deps are the services the routes are served from. Progression is nil when
// rewards go to a remote ledger.
type Deps struct {
	DB          *gorm.DB
	Tracking    *services.TrackingService
	Catalog     *services.CatalogService
	Reconciler  *services.RewardReconciler
	Progression *services.ProgressionLedger
	Gatherer    prometheus.Gatherer
}

func NewApp(opts AppOptions, d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "quest-service",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} [HTTP] ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(opts.GatewayToken))

	if len(opts.AllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(opts.AllowedOrigins, ","),
			AllowMethods:     "GET,POST,PUT,OPTIONS,HEAD",
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
			ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, X-Tracking-Expires-At",
			AllowCredentials: true,
			MaxAge:           86400,
		}))
	}

	SetupSystemRoutes(app, d.DB, d.Gatherer)
	SetupTrackingRoutes(app, d.Tracking)
	SetupCatalogRoutes(app, d.Catalog, d.Reconciler)
	if d.Progression != nil {
		SetupProgressionRoutes(app, d.Progression)
	}

	return app
}
