// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// MaintenanceScheduler runs the token sweeper and, when configured, the
// visit-log archiver on fixed intervals.
type MaintenanceScheduler struct {
	sched gocron.Scheduler
}

// StartMaintenanceScheduler registers the jobs and starts the scheduler.
// archiver may be nil.
func StartMaintenanceScheduler(ctx context.Context, clock clockwork.Clock, sweeper *TokenSweeper, sweepEvery time.Duration, archiver *VisitLogArchiver, archiveEvery time.Duration) (*MaintenanceScheduler, error) {
	opts := []gocron.SchedulerOption{}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(sweepEvery),
		gocron.NewTask(func() {
			if _, err := sweeper.RunOnce(ctx); err != nil {
				log.Printf("[Scheduler] Token sweep failed: %v", err)
			}
		}),
		gocron.WithName("sweep-tracking-tokens"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	if archiver != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(archiveEvery),
			gocron.NewTask(func() {
				if _, _, err := archiver.RunOnce(ctx); err != nil {
					log.Printf("[Scheduler] Visit log archive failed: %v", err)
				}
			}),
			gocron.WithName("archive-visit-logs"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	log.Printf("⏰ [Scheduler] Started (%d job(s))", len(sched.Jobs()))
	return &MaintenanceScheduler{sched: sched}, nil
}

func (m *MaintenanceScheduler) Shutdown() error {
	return m.sched.Shutdown()
}
