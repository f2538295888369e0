// models/task.go
package models

import (
	"gorm.io/datatypes"
)

// TaskType selects which verifier handles a task.
type TaskType string

const (
	TaskTypeExternalVisit TaskType = "EXTERNAL_VISIT"
	TaskTypeSocialFollow  TaskType = "SOCIAL_FOLLOW"
	TaskTypeInAppScore    TaskType = "IN_APP_SCORE"
)

// KnownTaskTypes lists every type the catalog accepts, verified or not.
var KnownTaskTypes = []TaskType{
	TaskTypeExternalVisit,
	TaskTypeSocialFollow,
	TaskTypeInAppScore,
}

func (t TaskType) Valid() bool {
	for _, k := range KnownTaskTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Task is a catalog entry. Only CompletionCount is written by the tracking flow.
type Task struct {
	ID          string   `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Slug        string   `json:"slug" gorm:"uniqueIndex;not null"`
	Type        TaskType `json:"type" gorm:"type:varchar(32);not null;index"`
	Title       string   `json:"title" gorm:"not null"`
	Description string   `json:"description" gorm:"type:text"`
	IsActive    bool     `json:"is_active" gorm:"not null;index"`

	// 🌐 External visit
	TargetURL       string `json:"target_url" gorm:"type:text"`
	MinDwellSeconds int    `json:"min_dwell_seconds" gorm:"not null;default:0"`

	// 🎁 Rewards (snapshotted onto completions)
	RewardPoints     int64                       `json:"reward_points" gorm:"not null;default:0"`
	RewardExperience int64                       `json:"reward_experience" gorm:"not null;default:0"`
	RewardItemIDs    datatypes.JSONSlice[string] `json:"reward_item_ids"`

	CompletionCount int64 `json:"completion_count" gorm:"not null;default:0"`

	Timestamps
}
