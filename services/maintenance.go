package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TokenSweeper deletes tracking tokens whose window has closed.
type TokenSweeper struct {
	Store   *TrackingStore
	Clock   clockwork.Clock
	Metrics *Metrics
}

func NewTokenSweeper(store *TrackingStore, clock clockwork.Clock, metrics *Metrics) *TokenSweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &TokenSweeper{Store: store, Clock: clock, Metrics: metrics}
}

func (s *TokenSweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.Store.DeleteExpiredTokens(ctx, s.Clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Metrics.TokensSwept.Add(float64(n))
		log.Printf("🧹 [SWEEP] Deleted %d expired tracking token(s)", n)
	}
	return n, nil
}

// ObjectUploader is the slice of object storage the archiver needs.
type ObjectUploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

const archiveBatchSize = 1000

// VisitLogArchiver moves visit logs older than Retention into object storage
// as JSON lines, then deletes them. Rows are deleted only after the upload
// succeeds.
type VisitLogArchiver struct {
	Store     *TrackingStore
	Uploader  ObjectUploader
	Clock     clockwork.Clock
	Metrics   *Metrics
	Retention time.Duration
}

func NewVisitLogArchiver(store *TrackingStore, uploader ObjectUploader, clock clockwork.Clock, metrics *Metrics, retention time.Duration) *VisitLogArchiver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &VisitLogArchiver{Store: store, Uploader: uploader, Clock: clock, Metrics: metrics, Retention: retention}
}

// RunOnce archives one batch. It returns the number of rows moved and the
// object key written, if any.
func (a *VisitLogArchiver) RunOnce(ctx context.Context) (int64, string, error) {
	now := a.Clock.Now().UTC()
	logs, err := a.Store.VisitLogsBefore(ctx, now.Add(-a.Retention), archiveBatchSize)
	if err != nil {
		return 0, "", err
	}
	if len(logs) == 0 {
		return 0, "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ids := make([]string, 0, len(logs))
	for _, v := range logs {
		if err := enc.Encode(v); err != nil {
			return 0, "", fmt.Errorf("encode visit log %s: %w", v.ID, err)
		}
		ids = append(ids, v.ID)
	}

	key := fmt.Sprintf("visit-logs/%s/%s.jsonl", now.Format("2006/01/02"), uuid.NewString())
	if err := a.Uploader.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, "", err
	}

	n, err := a.Store.DeleteVisitLogs(ctx, ids)
	if err != nil {
		return 0, key, fmt.Errorf("archived to %s but delete failed: %w", key, err)
	}
	a.Metrics.VisitLogsArchived.Add(float64(n))
	log.Printf("📦 [ARCHIVE] Moved %d visit log(s) to %s", n, key)
	return n, key, nil
}
