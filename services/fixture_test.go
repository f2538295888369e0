package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quest-service/database"
	"quest-service/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "quest.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// switchLedger forwards to the local ledger unless failing is set.
type switchLedger struct {
	mu      sync.Mutex
	inner   RewardLedger
	failing bool
	calls   []CreditRequest
}

func (l *switchLedger) Credit(ctx context.Context, req CreditRequest) error {
	l.mu.Lock()
	l.calls = append(l.calls, req)
	failing := l.failing
	l.mu.Unlock()
	if failing {
		return errors.New("ledger unavailable")
	}
	return l.inner.Credit(ctx, req)
}

func (l *switchLedger) setFailing(v bool) {
	l.mu.Lock()
	l.failing = v
	l.mu.Unlock()
}

func (l *switchLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type fixture struct {
	db       *gorm.DB
	clock    *clockwork.FakeClock
	store    *TrackingStore
	catalog  *CatalogService
	progress *ProgressionLedger
	ledger   *switchLedger
	metrics  *Metrics
	svc      *TrackingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clock := clockwork.NewFakeClockAt(t0)
	f := &fixture{
		db:      db,
		clock:   clock,
		store:   NewTrackingStore(db),
		catalog: NewCatalogService(db),
		metrics: NewMetrics(nil),
	}
	f.progress = NewProgressionLedger(db, clock)
	f.ledger = &switchLedger{inner: f.progress}
	visit := NewExternalVisitVerifier(f.store, f.catalog, f.ledger, clock, f.metrics, ExternalVisitConfig{
		TokenTTL:      24 * time.Hour,
		QueryParam:    "tracking_token",
		RewardLease:   2 * time.Minute,
		PublicBaseURL: "https://quests.example.com",
	})
	f.svc = NewTrackingService(f.catalog, f.store, clock, f.metrics, visit)
	return f
}

func (f *fixture) createTask(t *testing.T, req CreateTaskRequest) *models.Task {
	t.Helper()
	if req.Type == "" {
		req.Type = models.TaskTypeExternalVisit
	}
	if req.Title == "" {
		req.Title = "Visit the partner site"
	}
	if req.TargetURL == "" && req.Type == models.TaskTypeExternalVisit {
		req.TargetURL = "https://partner.example.com/landing?utm_source=quests"
	}
	task, err := f.catalog.CreateTask(context.Background(), req)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *fixture) completionCount(t *testing.T, taskID, userID string) int64 {
	t.Helper()
	n, err := f.store.CountCompletions(context.Background(), taskID, userID)
	if err != nil {
		t.Fatalf("count completions: %v", err)
	}
	return n
}

func (f *fixture) loadCompletion(t *testing.T, taskID, userID string) models.Completion {
	t.Helper()
	var c models.Completion
	if err := f.db.Where("task_id = ? AND user_id = ?", taskID, userID).First(&c).Error; err != nil {
		t.Fatalf("load completion: %v", err)
	}
	return c
}

func intPtr(v int) *int { return &v }
