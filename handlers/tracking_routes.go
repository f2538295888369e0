// handlers/tracking_routes.go
package handlers

import (
	"strconv"
	"time"

	"quest-service/apperr"
	"quest-service/middleware"
	"quest-service/services"
	"quest-service/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	qrSize         = 256
	streamInterval = 2 * time.Second
)

// TrackingHandler exposes Issue, Verify and Complete over HTTP.
type TrackingHandler struct {
	Tracking *services.TrackingService
}

func SetupTrackingRoutes(app *fiber.App, tracking *services.TrackingService) {
	h := &TrackingHandler{Tracking: tracking}

	// 🔓 Token is the capability; no user context
	app.Get("/track/:token/probe.js", h.ProbeScript)
	app.Get("/track/:token", h.Verify)

	// 🔐 User routes
	user := middleware.UserContextMiddleware()
	app.Post("/tasks/:id/track", user, h.Issue)
	app.Get("/tasks/:id/track/qr", user, h.IssueQR)
	app.Post("/tasks/:id/complete", user, h.Complete)
	app.Get("/user/completions", user, h.ListCompletions)
	app.Get("/user/completions/stream", user, StreamCompletions(tracking.Store, tracking.Clock, streamInterval))
}

func (h *TrackingHandler) Issue(c *fiber.Ctx) error {
	res, err := h.Tracking.Issue(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// IssueQR issues a token and returns the outbound url as a PNG QR code.
func (h *TrackingHandler) IssueQR(c *fiber.Ctx) error {
	res, err := h.Tracking.Issue(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	png, err := utils.QRCodePNG(res.URL, qrSize)
	if err != nil {
		return apperr.Internal(err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Tracking-Expires-At", res.ExpiresAt.UTC().Format(time.RFC3339))
	c.Type("png")
	return c.Send(png)
}

func (h *TrackingHandler) Verify(c *fiber.Ctx) error {
	res, err := h.Tracking.Verify(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(res)
}

// ProbeScript serves only the probe, for embedding with a script tag.
func (h *TrackingHandler) ProbeScript(c *fiber.Ctx) error {
	res, err := h.Tracking.Verify(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
	return c.SendString(res.ProbeScript)
}

func (h *TrackingHandler) Complete(c *fiber.Ctx) error {
	var report services.VisitReport
	if err := bindJSON(c, &report); err != nil {
		return err
	}
	if report.Referrer == "" {
		report.Referrer = c.Get(fiber.HeaderReferer)
	}
	if report.UserAgent == "" {
		report.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	report.SourceIP = c.IP()

	res, err := h.Tracking.Complete(c.UserContext(), middleware.UserID(c), c.Params("id"), report)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *TrackingHandler) ListCompletions(c *fiber.Ctx) error {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return apperr.Validation("limit must be between 1 and 100").
				WithDetails(map[string]interface{}{"limit": raw})
		}
		limit = n
	}

	completions, err := h.Tracking.Completions(c.UserContext(), middleware.UserID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"completions": completions,
		"count":       len(completions),
	})
}
