package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"quest-service/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditRequest is one ledger credit. Reference identifies the grant
// (the completion id); ledgers that support it use it to drop replays.
type CreditRequest struct {
	UserID     string
	Points     int64
	Experience int64
	Reference  string
	Reason     string
	// Quest marks a credit for a completed quest; it bumps total_quests.
	Quest      bool
}

// RewardLedger credits user balances. Only success/failure is consumed.
type RewardLedger interface {
	Credit(ctx context.Context, req CreditRequest) error
}

// ProgressionLedger credits the local user_progress table.
type ProgressionLedger struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewProgressionLedger(db *gorm.DB, clock clockwork.Clock) *ProgressionLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProgressionLedger{DB: db, Clock: clock}
}

// Credit atomically records the ledger entry and updates points, XP, level
// and rank. A reference that was already applied is a successful no-op.
func (l *ProgressionLedger) Credit(ctx context.Context, req CreditRequest) error {
	if req.UserID == "" {
		return errors.New("credit: user id is required")
	}
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}

	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.LedgerEntry{
			ExternalUserID: req.UserID,
			Reference:      req.Reference,
			Points:         req.Points,
			Experience:     req.Experience,
			Reason:         req.Reason,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).Create(&entry)
		if res.Error != nil {
			return fmt.Errorf("insert ledger entry: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			log.Printf("🔁 [LEDGER] Credit %s for %s already applied, skipping", req.Reference, req.UserID)
			return nil
		}

		if err := ensureProgressRow(tx, req.UserID); err != nil {
			return err
		}

		increments := map[string]interface{}{
			"total_points": gorm.Expr("total_points + ?", req.Points),
			"total_xp":     gorm.Expr("total_xp + ?", req.Experience),
		}
		if req.Quest {
			increments["total_quests"] = gorm.Expr("total_quests + ?", 1)
		}
		if err := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ?", req.UserID).
			UpdateColumns(increments).Error; err != nil {
			return fmt.Errorf("credit progress: %w", err)
		}

		var prog models.UserProgress
		if err := tx.Where("external_user_id = ?", req.UserID).First(&prog).Error; err != nil {
			return fmt.Errorf("reload progress: %w", err)
		}

		now := l.Clock.Now()
		updates := map[string]interface{}{"updated_at": now}
		if level := LevelForXP(prog.TotalXP); level > prog.Level {
			updates["level"] = level
			updates["last_level_up_at"] = now
			if rank := determineRank(level); rank > prog.Rank {
				updates["rank"] = rank
				updates["last_rank_up_at"] = now
			}
		}
		if err := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ?", req.UserID).
			UpdateColumns(updates).Error; err != nil {
			return fmt.Errorf("update level: %w", err)
		}
		if level, ok := updates["level"].(int); ok {
			prog.Level = level
		}
		if rank, ok := updates["rank"].(int); ok {
			prog.Rank = rank
		}
		if _, err := awardBadges(tx, &prog, now); err != nil {
			return err
		}

		log.Printf("🎮 [LEDGER] Credited %s → +%d pts, +%d XP (ref: %s)", req.UserID, req.Points, req.Experience, req.Reference)
		return nil
	})
}

// GetProgress returns the user's balance, or a fresh level-1 record if the
// user has never been credited.
func (l *ProgressionLedger) GetProgress(ctx context.Context, userID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := l.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserProgress{ExternalUserID: userID, Level: 1, Rank: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// ensureProgressRow ensures a UserProgress row exists (idempotent)
func ensureProgressRow(tx *gorm.DB, userID string) error {
	prog := models.UserProgress{
		ExternalUserID: userID,
		Level:          1,
		Rank:           1,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&prog).Error; err != nil {
		return fmt.Errorf("ensure progress record for %s: %w", userID, err)
	}
	return nil
}
