// handlers/progression_routes.go
package handlers

import (
	"log"

	"quest-service/apperr"
	"quest-service/middleware"
	"quest-service/models"
	"quest-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SetupProgressionRoutes serves balances from the local ledger. Only wired
// when LEDGER_MODE=local.
func SetupProgressionRoutes(app *fiber.App, ledger *services.ProgressionLedger) {
	app.Get("/user/progress", middleware.UserContextMiddleware(), func(c *fiber.Ctx) error {
		prog, err := ledger.GetProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return apperr.Internal(err)
		}

		badges, err := ledger.Badges(c.UserContext(), prog.ExternalUserID)
		if err != nil {
			return apperr.Internal(err)
		}
		badgeList := make([]fiber.Map, 0, len(badges))
		for _, ub := range badges {
			bt, _ := models.BadgeByCode(ub.BadgeCode)
			badgeList = append(badgeList, fiber.Map{
				"code":        ub.BadgeCode,
				"name":        bt.Name,
				"description": bt.Description,
				"rarity":      bt.Rarity,
				"awarded_at":  ub.AwardedAt,
			})
		}

		level := prog.Level
		if level < 1 {
			level = 1
		}
		return c.JSON(fiber.Map{
			"user_id":       prog.ExternalUserID,
			"total_points":  prog.TotalPoints,
			"total_xp":      prog.TotalXP,
			"level":         level,
			"rank":          prog.Rank,
			"rank_name":     services.RankName(prog.Rank),
			"total_quests":  prog.TotalQuests,
			"xp_next_level": services.XPForNextLevel(level),
			"badges":        badgeList,
		})
	})

	// Admin endpoints
	admin := app.Group("/admin/xp", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Post("/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,max=64"`
			Points int64  `json:"points" validate:"min=0"`
			XP     int64  `json:"xp" validate:"min=0"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		if req.Points == 0 && req.XP == 0 {
			return apperr.Validation("points or xp must be positive")
		}

		ref := "grant:" + uuid.NewString()
		if err := ledger.Credit(c.UserContext(), services.CreditRequest{
			UserID:     req.UserID,
			Points:     req.Points,
			Experience: req.XP,
			Reference:  ref,
			Reason:     req.Reason,
		}); err != nil {
			return apperr.Internal(err)
		}

		log.Printf("🎁 [ADMIN] %s granted %s +%d pts, +%d XP", middleware.UserID(c), req.UserID, req.Points, req.XP)
		return c.JSON(fiber.Map{
			"message":   "XP granted successfully",
			"user_id":   req.UserID,
			"points":    req.Points,
			"xp":        req.XP,
			"reference": ref,
		})
	})
}
