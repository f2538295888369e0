package services

import (
	"context"
	"fmt"
	"log"

	"quest-service/models"

	"github.com/jonboulle/clockwork"
)

// rewardIssuer credits a completion's snapshot and closes its saga. Both the
// completion path and the reconciler go through it, so every credit for a
// completion carries the completion id as its reference.
type rewardIssuer struct {
	store  *TrackingStore
	ledger RewardLedger
	clock  clockwork.Clock
}

func (r rewardIssuer) issue(ctx context.Context, c *models.Completion) StepOutcome {
	err := r.ledger.Credit(ctx, CreditRequest{
		UserID:     c.UserID,
		Points:     c.PointsAwarded,
		Experience: c.ExperienceAwarded,
		Reference:  c.ID,
		Reason:     "quest:" + c.TaskID,
		Quest:      true,
	})
	if err != nil {
		if relErr := r.store.ReleaseRewardLease(ctx, c.ID, err.Error()); relErr != nil {
			log.Printf("⚠️ [REWARD] Could not release lease on %s: %v", c.ID, relErr)
		}
		return bestEffortFailed(StepRewardCredit, err)
	}

	now := r.clock.Now().UTC()
	if err := r.store.MarkRewardsIssued(ctx, c.ID, now); err != nil {
		// The ledger saw the credit. The reconciler replays it under the same
		// reference once the lease lapses.
		return bestEffortFailed(StepRewardCredit, fmt.Errorf("credited but not marked issued: %w", err))
	}
	c.RewardsIssued = true
	c.RewardsIssuedAt = &now
	c.RewardLeaseUntil = nil
	return committed(StepRewardCredit)
}
