package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"quest-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// awardBadges grants every trigger prog now meets. It runs on the caller's
// transaction; already-held badges are left alone.
func awardBadges(tx *gorm.DB, prog *models.UserProgress, now time.Time) ([]string, error) {
	var awarded []string
	for _, trigger := range models.BadgeTriggers {
		if !meetsThreshold(prog, trigger.Threshold) {
			continue
		}
		badge := models.UserBadge{
			ExternalUserID: prog.ExternalUserID,
			BadgeCode:      trigger.Code,
			AwardedAt:      now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "badge_code"}},
			DoNothing: true,
		}).Create(&badge)
		if res.Error != nil {
			return nil, fmt.Errorf("award badge %s: %w", trigger.Code, res.Error)
		}
		if res.RowsAffected > 0 {
			awarded = append(awarded, trigger.Code)
			log.Printf("🎖️ Badge awarded: %s → %s", trigger.Name, prog.ExternalUserID)
		}
	}
	return awarded, nil
}

func meetsThreshold(prog *models.UserProgress, req map[string]int64) bool {
	for key, required := range req {
		switch key {
		case "total_quests":
			if prog.TotalQuests < required {
				return false
			}
		case "total_points":
			if prog.TotalPoints < required {
				return false
			}
		case "level":
			if int64(prog.Level) < required {
				return false
			}
		case "rank":
			if int64(prog.Rank) < required {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Badges lists the badges a user holds, oldest first.
func (l *ProgressionLedger) Badges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var out []models.UserBadge
	err := l.DB.WithContext(ctx).
		Where("external_user_id = ?", userID).
		Order("awarded_at ASC").
		Find(&out).Error
	return out, err
}
