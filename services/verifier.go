package services

import (
	"context"
	"time"

	"quest-service/models"
)

// TaskVerifier is the per-task-type capability set. The tracking service
// resolves and gates the task, then hands it to the verifier for its type.
type TaskVerifier interface {
	Type() models.TaskType
	Issue(ctx context.Context, userID string, task *models.Task) (*IssueResult, error)
	Verify(ctx context.Context, tok *models.TrackingToken, task *models.Task) (*VerifyResult, error)
	Complete(ctx context.Context, userID string, task *models.Task, report VisitReport) (*CompletionResult, error)
}

type IssueResult struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VerifyResult struct {
	Token           string `json:"token"`
	TaskID          string `json:"task_id"`
	TaskTitle       string `json:"task_title"`
	TaskDescription string `json:"task_description"`
	MinDwellSeconds int    `json:"min_dwell_seconds"`
	ProbeScript     string `json:"probe_script"`
}

// VisitReport is the self-reported visit sent by the probe.
type VisitReport struct {
	Token        string `json:"token" validate:"required,max=128"`
	DwellSeconds *int   `json:"dwell_seconds" validate:"omitempty,min=0"`
	Referrer     string `json:"referrer" validate:"max=2048"`
	UserAgent    string `json:"user_agent" validate:"max=1024"`
	SourceIP     string `json:"-"`
}

type RewardView struct {
	Points     int64    `json:"points"`
	Experience int64    `json:"experience"`
	Items      []string `json:"items"`
}

type CompletionView struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	CompletedAt time.Time  `json:"completed_at"`
	Rewards     RewardView `json:"rewards"`
}

type CompletionResult struct {
	Success       bool           `json:"success"`
	Completion    CompletionView `json:"completion"`
	RewardsIssued bool           `json:"rewards_issued"`
	Steps         *StepReport    `json:"-"`
}

func completionView(c *models.Completion) CompletionView {
	items := []string(c.ItemsAwarded)
	if items == nil {
		items = []string{}
	}
	return CompletionView{
		ID:          c.ID,
		TaskID:      c.TaskID,
		CompletedAt: c.CompletedAt,
		Rewards: RewardView{
			Points:     c.PointsAwarded,
			Experience: c.ExperienceAwarded,
			Items:      items,
		},
	}
}
