package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BadgeType is static config; the triggers below are the whole catalog.
type BadgeType struct {
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Rarity      string           `json:"rarity"`    // common, rare, epic, legendary
	Threshold   map[string]int64 `json:"threshold"` // e.g., {"total_quests": 10}
}

// UserBadge is an awarded instance. A badge is held at most once per user.
type UserBadge struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ExternalUserID string    `json:"external_user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_user_badges_user_code"`
	BadgeCode      string    `json:"badge_code" gorm:"type:varchar(32);not null;uniqueIndex:idx_user_badges_user_code"`
	AwardedAt      time.Time `json:"awarded_at" gorm:"not null"`
}

func (b *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BadgeTriggers are checked after every local ledger credit.
var BadgeTriggers = []BadgeType{
	{
		Code:        "FIRST_QUEST",
		Name:        "First Steps",
		Description: "Completed your first quest",
		Rarity:      "common",
		Threshold:   map[string]int64{"total_quests": 1},
	},
	{
		Code:        "QUEST_EXPLORER",
		Name:        "Explorer",
		Description: "Completed 10 quests",
		Rarity:      "rare",
		Threshold:   map[string]int64{"total_quests": 10},
	},
	{
		Code:        "QUEST_VETERAN",
		Name:        "Veteran",
		Description: "Completed 50 quests",
		Rarity:      "epic",
		Threshold:   map[string]int64{"total_quests": 50},
	},
	{
		Code:        "SILVER_RANK",
		Name:        "Silver Lining",
		Description: "Reached Silver rank",
		Rarity:      "rare",
		Threshold:   map[string]int64{"rank": 2},
	},
	{
		Code:        "GOLD_RANK",
		Name:        "Gold Standard",
		Description: "Reached Gold rank",
		Rarity:      "legendary",
		Threshold:   map[string]int64{"rank": 3},
	},
}

// BadgeByCode looks a trigger up by code.
func BadgeByCode(code string) (BadgeType, bool) {
	for _, b := range BadgeTriggers {
		if b.Code == code {
			return b, true
		}
	}
	return BadgeType{}, false
}
