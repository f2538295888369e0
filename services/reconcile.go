package services

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

const reconcileBatchSize = 50

// RewardReconciler finishes reward credits that the completion path could
// not apply. Each row is claimed with a lease first, so concurrent
// reconcilers never credit the same completion at the same time.
type RewardReconciler struct {
	Store   *TrackingStore
	Ledger  RewardLedger
	Clock   clockwork.Clock
	Metrics *Metrics
	Lease   time.Duration
}

func NewRewardReconciler(store *TrackingStore, ledger RewardLedger, clock clockwork.Clock, metrics *Metrics, lease time.Duration) *RewardReconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &RewardReconciler{Store: store, Ledger: ledger, Clock: clock, Metrics: metrics, Lease: lease}
}

// RunOnce processes one batch and returns how many credits were applied.
func (r *RewardReconciler) RunOnce(ctx context.Context) (int, error) {
	now := r.Clock.Now().UTC()
	pending, err := r.Store.PendingRewards(ctx, now, reconcileBatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	issuer := rewardIssuer{store: r.Store, ledger: r.Ledger, clock: r.Clock}
	applied := 0
	for i := range pending {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		c := &pending[i]

		claimed, err := r.Store.ClaimRewardLease(ctx, c.ID, now, now.Add(r.Lease))
		if err != nil {
			log.Printf("❌ [RECONCILE] Claim failed for completion %s: %v", c.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		outcome := issuer.issue(ctx, c)
		if outcome.Failed() {
			r.Metrics.BestEffortFailures.WithLabelValues(string(outcome.Step)).Inc()
			log.Printf("⚠️ [RECONCILE] Credit for completion %s (user %s) still failing: %s", c.ID, c.UserID, outcome.Reason)
			continue
		}
		applied++
		r.Metrics.RewardsReconciled.Inc()
		log.Printf("🔁 [RECONCILE] Credited completion %s → %s (+%d pts, +%d XP)", c.ID, c.UserID, c.PointsAwarded, c.ExperienceAwarded)
	}
	return applied, nil
}

// Pending lists completions still waiting on a credit, for the admin view.
func (r *RewardReconciler) Pending(ctx context.Context, limit int) (int, []PendingReward, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.Store.PendingRewards(ctx, r.Clock.Now().UTC(), limit)
	if err != nil {
		return 0, nil, err
	}
	out := make([]PendingReward, 0, len(rows))
	for _, c := range rows {
		out = append(out, PendingReward{
			CompletionID: c.ID,
			TaskID:       c.TaskID,
			UserID:       c.UserID,
			CompletedAt:  c.CompletedAt,
			Points:       c.PointsAwarded,
			Experience:   c.ExperienceAwarded,
			Attempts:     c.RewardAttempts,
			LastError:    c.LastRewardError,
		})
	}
	return len(out), out, nil
}

type PendingReward struct {
	CompletionID string    `json:"completion_id"`
	TaskID       string    `json:"task_id"`
	UserID       string    `json:"user_id"`
	CompletedAt  time.Time `json:"completed_at"`
	Points       int64     `json:"points"`
	Experience   int64     `json:"experience"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
}
