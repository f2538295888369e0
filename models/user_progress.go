package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProgress is the local reward ledger balance for each user (denormalized for performance)
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	// Core progression
	TotalPoints int64 `json:"total_points" gorm:"not null;default:0"`
	TotalXP     int64 `json:"total_xp" gorm:"not null;default:0"`
	Level       int   `json:"level" gorm:"not null;default:1"`
	Rank        int   `json:"rank" gorm:"not null;default:1"`

	// Activity counters
	TotalQuests int64 `json:"total_quests" gorm:"not null;default:0"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`
	LastRankUpAt  *time.Time `json:"last_rank_up_at,omitempty"`

	Timestamps
}

func (p *UserProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// LedgerEntry records one credit. Reference is unique so a replayed
// credit for the same completion is a no-op.
type LedgerEntry struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string    `gorm:"index;not null" json:"external_user_id"`
	Reference      string    `gorm:"uniqueIndex;not null" json:"reference"`
	Points         int64     `json:"points"`
	Experience     int64     `json:"experience"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Task{},
		&TrackingToken{},
		&Completion{},
		&VisitLog{},
		&UserProgress{},
		&LedgerEntry{},
		&UserBadge{},
	}
}
