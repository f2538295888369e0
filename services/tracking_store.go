package services

import (
	"context"
	"errors"
	"time"

	"quest-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackingStore holds tracking tokens, completions and visit logs.
// Uniqueness is enforced by indexes, never by read-then-write checks.
type TrackingStore struct {
	DB *gorm.DB
}

func NewTrackingStore(db *gorm.DB) *TrackingStore {
	return &TrackingStore{DB: db}
}

// UpsertToken replaces the pair's token in one statement.
func (s *TrackingStore) UpsertToken(ctx context.Context, tok *models.TrackingToken) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "created_at", "expires_at"}),
	}).Create(tok).Error
}

// FindToken looks a token up by value alone. Missing tokens return nil, nil.
func (s *TrackingStore) FindToken(ctx context.Context, token string) (*models.TrackingToken, error) {
	var tok models.TrackingToken
	err := s.DB.WithContext(ctx).Where("token = ?", token).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// FindBoundToken requires token, task and user to all match.
func (s *TrackingStore) FindBoundToken(ctx context.Context, token, taskID, userID string) (*models.TrackingToken, error) {
	var tok models.TrackingToken
	err := s.DB.WithContext(ctx).
		Where("token = ? AND task_id = ? AND user_id = ?", token, taskID, userID).
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *TrackingStore) CompletionExists(ctx context.Context, taskID, userID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).
		Model(&models.Completion{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *TrackingStore) AppendVisitLog(ctx context.Context, v *models.VisitLog) error {
	return s.DB.WithContext(ctx).Create(v).Error
}

// CommitCompletion inserts the completion and, in a savepoint of the same
// transaction, deletes the consumed token. A duplicate (task, user) returns
// an error wrapping gorm.ErrDuplicatedKey. A failed token delete only
// produces a best-effort outcome.
func (s *TrackingStore) CommitCompletion(ctx context.Context, c *models.Completion, token string) (StepOutcome, error) {
	cleanup := committed(StepTokenCleanup)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Where("token = ?", token).Delete(&models.TrackingToken{}).Error
		}); err != nil {
			cleanup = bestEffortFailed(StepTokenCleanup, err)
		}
		return nil
	})
	if err != nil {
		return StepOutcome{}, err
	}
	return cleanup, nil
}

// MarkRewardsIssued closes the reward saga for a completion.
func (s *TrackingStore) MarkRewardsIssued(ctx context.Context, completionID string, at time.Time) error {
	return s.DB.WithContext(ctx).
		Model(&models.Completion{}).
		Where("id = ?", completionID).
		UpdateColumns(map[string]interface{}{
			"rewards_issued":     true,
			"rewards_issued_at":  at,
			"reward_lease_until": nil,
			"last_reward_error":  "",
		}).Error
}

// ReleaseRewardLease records a failed credit and hands the row to the reconciler.
func (s *TrackingStore) ReleaseRewardLease(ctx context.Context, completionID, reason string) error {
	return s.DB.WithContext(ctx).
		Model(&models.Completion{}).
		Where("id = ? AND rewards_issued = ?", completionID, false).
		UpdateColumns(map[string]interface{}{
			"reward_lease_until": nil,
			"last_reward_error":  reason,
		}).Error
}

// ClaimRewardLease takes the lease on an unissued completion whose previous
// lease is absent or expired. Only one concurrent claimant gets true.
func (s *TrackingStore) ClaimRewardLease(ctx context.Context, completionID string, now, until time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Completion{}).
		Where("id = ? AND rewards_issued = ?", completionID, false).
		Where("reward_lease_until IS NULL OR reward_lease_until < ?", now).
		UpdateColumns(map[string]interface{}{
			"reward_lease_until": until,
			"reward_attempts":    gorm.Expr("reward_attempts + ?", 1),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// PendingRewards lists completions whose credit is outstanding and unleased.
func (s *TrackingStore) PendingRewards(ctx context.Context, now time.Time, limit int) ([]models.Completion, error) {
	var out []models.Completion
	err := s.DB.WithContext(ctx).
		Where("rewards_issued = ?", false).
		Where("reward_lease_until IS NULL OR reward_lease_until < ?", now).
		Order("completed_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCompletions returns a user's completions, newest first.
func (s *TrackingStore) ListCompletions(ctx context.Context, userID string, limit int) ([]models.Completion, error) {
	var out []models.Completion
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountCompletions counts completions for a (task, user) pair.
func (s *TrackingStore) CountCompletions(ctx context.Context, taskID, userID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.Completion{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Count(&count).Error
	return count, err
}

// DeleteExpiredTokens removes tokens whose window closed before now.
func (s *TrackingStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.TrackingToken{})
	return res.RowsAffected, res.Error
}

// VisitLogsBefore returns up to limit visit logs created before cutoff, oldest first.
func (s *TrackingStore) VisitLogsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.VisitLog, error) {
	var out []models.VisitLog
	err := s.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *TrackingStore) DeleteVisitLogs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Where("id IN ?", ids).Delete(&models.VisitLog{})
	return res.RowsAffected, res.Error
}

// CompletionsSince returns a user's completions recorded after since, oldest first.
func (s *TrackingStore) CompletionsSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.Completion, error) {
	var out []models.Completion
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND completed_at > ?", userID, since).
		Order("completed_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
