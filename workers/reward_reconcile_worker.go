package workers

import (
	"context"
	"log"
	"time"

	"quest-service/services"
)

type RewardReconcileWorker struct {
	reconciler *services.RewardReconciler
	interval   time.Duration
}

func NewRewardReconcileWorker(reconciler *services.RewardReconciler, interval time.Duration) *RewardReconcileWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RewardReconcileWorker{reconciler: reconciler, interval: interval}
}

// Start polls for completions with outstanding credits until ctx is done.
func (w *RewardReconcileWorker) Start(ctx context.Context) {
	log.Printf("Starting reward reconciliation (every %s)...", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Reward reconciliation stopped.")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RewardReconcileWorker) runOnce(ctx context.Context) {
	applied, err := w.reconciler.RunOnce(ctx)
	if err != nil {
		log.Printf("❌ Error reconciling rewards: %v", err)
		return
	}
	if applied > 0 {
		log.Printf("📥 Reconciled %d reward credit(s).", applied)
	}
}
