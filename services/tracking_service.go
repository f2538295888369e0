package services

import (
	"context"
	"errors"
	"log"

	"quest-service/apperr"
	"quest-service/models"

	"github.com/jonboulle/clockwork"
)

// TrackingService is the entry point for Issue, Verify and Complete. It
// resolves the task, applies the checks shared by every task type and
// dispatches to the registered verifier.
type TrackingService struct {
	Catalog   TaskCatalog
	Store     *TrackingStore
	Clock     clockwork.Clock
	Metrics   *Metrics
	verifiers map[models.TaskType]TaskVerifier
}

func NewTrackingService(catalog TaskCatalog, store *TrackingStore, clock clockwork.Clock, metrics *Metrics, verifiers ...TaskVerifier) *TrackingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	s := &TrackingService{
		Catalog:   catalog,
		Store:     store,
		Clock:     clock,
		Metrics:   metrics,
		verifiers: make(map[models.TaskType]TaskVerifier),
	}
	for _, v := range verifiers {
		s.Register(v)
	}
	return s
}

// Register adds or replaces the verifier for v.Type().
func (s *TrackingService) Register(v TaskVerifier) {
	s.verifiers[v.Type()] = v
}

func (s *TrackingService) verifierFor(t models.TaskType) (TaskVerifier, bool) {
	v, ok := s.verifiers[t]
	return v, ok
}

// liveTask loads a task and hides inactive ones behind NOT_FOUND.
func (s *TrackingService) liveTask(ctx context.Context, taskID string) (*models.Task, error) {
	if taskID == "" {
		return nil, apperr.NotFound("task not found")
	}
	task, err := s.Catalog.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, apperr.NotFound("task not found")
		}
		return nil, apperr.Internal(err)
	}
	if !task.IsActive {
		return nil, apperr.NotFound("task not found")
	}
	return task, nil
}

// Issue mints a tracking token for (userID, taskID), replacing any earlier one.
func (s *TrackingService) Issue(ctx context.Context, userID, taskID string) (*IssueResult, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	task, err := s.liveTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	v, ok := s.verifierFor(task.Type)
	if !ok {
		return nil, apperr.InvalidTaskType("task type does not support tracking")
	}
	return v.Issue(ctx, userID, task)
}

// Verify resolves a token to its task. It is read-only and needs no user.
func (s *TrackingService) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	if token == "" {
		return nil, apperr.NotFound("tracking token not found")
	}
	tok, err := s.Store.FindToken(ctx, token)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if tok == nil {
		return nil, apperr.NotFound("tracking token not found")
	}
	if tok.Expired(s.Clock.Now().UTC()) {
		return nil, apperr.Expired("tracking token expired").
			WithDetails(map[string]interface{}{"expires_at": tok.ExpiresAt})
	}

	task, err := s.liveTask(ctx, tok.TaskID)
	if err != nil {
		return nil, err
	}
	v, ok := s.verifierFor(task.Type)
	if !ok {
		return nil, apperr.Validation("task type does not support visit verification")
	}
	return v.Verify(ctx, tok, task)
}

// Complete records a self-reported visit. Success means the completion row
// exists; RewardsIssued reports whether the ledger credit has landed yet.
func (s *TrackingService) Complete(ctx context.Context, userID, taskID string, report VisitReport) (*CompletionResult, error) {
	res, err := s.complete(ctx, userID, taskID, report)
	result := "success"
	if err != nil {
		result = string(apperr.CodeOf(err))
		if apperr.Is(err, apperr.CodeInternal) {
			log.Printf("❌ [COMPLETE] task=%s user=%s: %v", taskID, userID, err)
		}
	}
	s.Metrics.Completions.WithLabelValues(result).Inc()
	return res, err
}

func (s *TrackingService) complete(ctx context.Context, userID, taskID string, report VisitReport) (*CompletionResult, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if report.Token == "" {
		return nil, apperr.Validation("token is required").
			WithDetails(map[string]interface{}{"field": "token"})
	}
	if report.DwellSeconds != nil && *report.DwellSeconds < 0 {
		return nil, apperr.Validation("dwell_seconds must be a non-negative integer").
			WithDetails(map[string]interface{}{"field": "dwell_seconds"})
	}

	task, err := s.liveTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	v, ok := s.verifierFor(task.Type)
	if !ok {
		return nil, apperr.InvalidTaskType("task type does not support tracking")
	}
	return v.Complete(ctx, userID, task, report)
}

// Completions lists the caller's completions, newest first.
func (s *TrackingService) Completions(ctx context.Context, userID string, limit int) ([]models.Completion, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	out, err := s.Store.ListCompletions(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}
