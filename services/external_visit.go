package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"quest-service/apperr"
	"quest-service/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExternalVisitConfig holds the tunables of the external-visit flow.
type ExternalVisitConfig struct {
	TokenTTL      time.Duration
	QueryParam    string
	RewardLease   time.Duration
	PublicBaseURL string
}

// ExternalVisitVerifier handles EXTERNAL_VISIT tasks: the user is sent to the
// task's target url with a tracking token, and a probe on that page reports
// the dwell time back.
type ExternalVisitVerifier struct {
	Store   *TrackingStore
	Catalog TaskCatalog
	Ledger  RewardLedger
	Clock   clockwork.Clock
	Metrics *Metrics
	Config  ExternalVisitConfig
	Probe   ProbeRenderer
}

func NewExternalVisitVerifier(store *TrackingStore, catalog TaskCatalog, ledger RewardLedger, clock clockwork.Clock, metrics *Metrics, cfg ExternalVisitConfig) *ExternalVisitVerifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "tracking_token"
	}
	if cfg.RewardLease <= 0 {
		cfg.RewardLease = 2 * time.Minute
	}
	return &ExternalVisitVerifier{
		Store:   store,
		Catalog: catalog,
		Ledger:  ledger,
		Clock:   clock,
		Metrics: metrics,
		Config:  cfg,
		Probe:   ProbeRenderer{PublicBaseURL: cfg.PublicBaseURL},
	}
}

func (v *ExternalVisitVerifier) Type() models.TaskType { return models.TaskTypeExternalVisit }

func (v *ExternalVisitVerifier) Issue(ctx context.Context, userID string, task *models.Task) (*IssueResult, error) {
	done, err := v.Store.CompletionExists(ctx, task.ID, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if done {
		return nil, apperr.AlreadyCompleted("task already completed")
	}

	token, err := generateTrackingToken()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	outbound, err := buildTrackingURL(task.TargetURL, v.Config.QueryParam, token)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := v.Clock.Now().UTC()
	tok := &models.TrackingToken{
		Token:     token,
		TaskID:    task.ID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(v.Config.TokenTTL),
	}
	if err := v.Store.UpsertToken(ctx, tok); err != nil {
		return nil, apperr.Internal(err)
	}

	v.Metrics.TokensIssued.Inc()
	log.Printf("🎟️ [TRACK] Issued token for task %s to %s (expires %s)", task.ID, userID, tok.ExpiresAt.Format(time.RFC3339))
	return &IssueResult{Token: token, URL: outbound, ExpiresAt: tok.ExpiresAt}, nil
}

func (v *ExternalVisitVerifier) Verify(ctx context.Context, tok *models.TrackingToken, task *models.Task) (*VerifyResult, error) {
	done, err := v.Store.CompletionExists(ctx, task.ID, tok.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if done {
		return nil, apperr.AlreadyCompleted("task already completed")
	}

	script, err := v.Probe.Render(task.ID, tok.Token, task.MinDwellSeconds)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &VerifyResult{
		Token:           tok.Token,
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		TaskDescription: task.Description,
		MinDwellSeconds: task.MinDwellSeconds,
		ProbeScript:     script,
	}, nil
}

// Complete runs steps 2 through 9 of the completion sequence; the caller has
// already reloaded and gated the task (step 1).
func (v *ExternalVisitVerifier) Complete(ctx context.Context, userID string, task *models.Task, report VisitReport) (*CompletionResult, error) {
	now := v.Clock.Now().UTC()

	// Token bound to this exact task and user.
	tok, err := v.Store.FindBoundToken(ctx, report.Token, task.ID, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if tok == nil {
		// The token is deleted when its completion commits, so a replay of a
		// consumed token lands here.
		done, err := v.Store.CompletionExists(ctx, task.ID, userID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if done {
			return nil, apperr.AlreadyCompleted("task already completed")
		}
		return nil, apperr.NotFound("tracking token not found")
	}
	if tok.Expired(now) {
		return nil, apperr.Expired("tracking token expired").
			WithDetails(map[string]interface{}{"expires_at": tok.ExpiresAt})
	}

	done, err := v.Store.CompletionExists(ctx, task.ID, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if done {
		return nil, apperr.AlreadyCompleted("task already completed")
	}

	dwell := 0
	if report.DwellSeconds != nil {
		dwell = *report.DwellSeconds
	}
	if dwell < task.MinDwellSeconds {
		return nil, apperr.Validation("dwell time below the task minimum").
			WithDetails(map[string]interface{}{
				"dwell_seconds":     dwell,
				"min_dwell_seconds": task.MinDwellSeconds,
			})
	}

	steps := &StepReport{}

	visit := &models.VisitLog{
		TaskID:       task.ID,
		UserID:       userID,
		Token:        tok.Token,
		DwellSeconds: dwell,
		Referrer:     report.Referrer,
		UserAgent:    report.UserAgent,
		SourceIP:     report.SourceIP,
		CreatedAt:    now,
	}
	if err := v.Store.AppendVisitLog(ctx, visit); err != nil {
		v.recordFailure(steps, bestEffortFailed(StepVisitLog, err), task.ID, userID)
	} else {
		steps.Record(committed(StepVisitLog), task.ID, userID)
	}

	// Commit point. Everything after this is a consequence of the row existing.
	snapshot, err := json.Marshal(map[string]interface{}{
		"method":            "external_visit",
		"dwell_seconds":     dwell,
		"min_dwell_seconds": task.MinDwellSeconds,
		"token_issued_at":   tok.CreatedAt,
		"referrer":          report.Referrer,
		"user_agent":        report.UserAgent,
		"source_ip":         report.SourceIP,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	leaseUntil := now.Add(v.Config.RewardLease)
	items := append([]string{}, task.RewardItemIDs...)
	completion := &models.Completion{
		TaskID:               task.ID,
		UserID:               userID,
		CompletedAt:          now,
		VerificationStatus:   models.VerificationVerified,
		VerificationSnapshot: datatypes.JSON(snapshot),
		PointsAwarded:        task.RewardPoints,
		ExperienceAwarded:    task.RewardExperience,
		ItemsAwarded:         datatypes.JSONSlice[string](items),
		RewardLeaseUntil:     &leaseUntil,
	}
	cleanup, err := v.Store.CommitCompletion(ctx, completion, tok.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.AlreadyCompleted("task already completed")
		}
		return nil, apperr.Internal(err)
	}
	steps.Record(committed(StepCommit), task.ID, userID)
	// Token cleanup ran in a savepoint of the commit transaction.
	v.recordFailure(steps, cleanup, task.ID, userID)

	issuer := rewardIssuer{store: v.Store, ledger: v.Ledger, clock: v.Clock}
	v.recordFailure(steps, issuer.issue(ctx, completion), task.ID, userID)

	if err := v.Catalog.IncrementCompletionCount(ctx, task.ID); errors.Is(err, ErrTaskNotFound) {
		steps.Record(skipped(StepCompletionCount, "task removed from catalog"), task.ID, userID)
	} else if err != nil {
		v.recordFailure(steps, bestEffortFailed(StepCompletionCount, err), task.ID, userID)
	} else {
		steps.Record(committed(StepCompletionCount), task.ID, userID)
	}

	log.Printf("✅ [COMPLETE] %s completed task %s (+%d pts, +%d XP, %s)",
		userID, task.ID, completion.PointsAwarded, completion.ExperienceAwarded, steps)

	return &CompletionResult{
		Success:       true,
		Completion:    completionView(completion),
		RewardsIssued: completion.RewardsIssued,
		Steps:         steps,
	}, nil
}

func (v *ExternalVisitVerifier) recordFailure(steps *StepReport, o StepOutcome, taskID, userID string) {
	steps.Record(o, taskID, userID)
	if o.Failed() {
		v.Metrics.BestEffortFailures.WithLabelValues(string(o.Step)).Inc()
	}
}
