// models/tracking.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "VERIFIED"
)

// TrackingToken binds one user to one task until ExpiresAt.
// (task_id, user_id) is unique: reissuing replaces the row in place.
type TrackingToken struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Token     string    `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	TaskID    string    `json:"task_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_tracking_tokens_task_user"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_tracking_tokens_task_user"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

func (t *TrackingToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Expired uses a strict comparison: a token is still valid at ExpiresAt.
func (t *TrackingToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Completion is the record that a (task, user) reward was granted.
// At most one row exists per pair; the reward columns are snapshots.
type Completion struct {
	ID                   string             `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TaskID               string             `json:"task_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_completions_task_user"`
	UserID               string             `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_completions_task_user;index"`
	CompletedAt          time.Time          `json:"completed_at" gorm:"not null;index"`
	VerificationStatus   VerificationStatus `json:"verification_status" gorm:"type:varchar(16);not null"`
	VerificationSnapshot datatypes.JSON     `json:"verification_snapshot"`

	PointsAwarded     int64                       `json:"points_awarded" gorm:"not null;default:0"`
	ExperienceAwarded int64                       `json:"experience_awarded" gorm:"not null;default:0"`
	ItemsAwarded      datatypes.JSONSlice[string] `json:"items_awarded"`

	// Reward issuance bookkeeping (see services/reconcile.go)
	RewardsIssued    bool       `json:"rewards_issued" gorm:"not null;index"`
	RewardsIssuedAt  *time.Time `json:"rewards_issued_at,omitempty"`
	RewardAttempts   int        `json:"reward_attempts" gorm:"not null;default:0"`
	RewardLeaseUntil *time.Time `json:"-" gorm:"index"`
	LastRewardError  string     `json:"-" gorm:"type:text"`
}

func (c *Completion) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// VisitLog is an audit trail of self-reported visits. Not authoritative.
type VisitLog struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TaskID       string    `json:"task_id" gorm:"type:varchar(64);index"`
	UserID       string    `json:"user_id" gorm:"type:varchar(64);index"`
	Token        string    `json:"token" gorm:"type:varchar(64)"`
	DwellSeconds int       `json:"dwell_seconds"`
	Referrer     string    `json:"referrer" gorm:"type:text"`
	UserAgent    string    `json:"user_agent" gorm:"type:text"`
	SourceIP     string    `json:"source_ip" gorm:"type:varchar(64)"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;index"`
}

func (v *VisitLog) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
