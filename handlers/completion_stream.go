// handlers/completion_stream.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"quest-service/middleware"
	"quest-service/models"
	"quest-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
)

const (
	streamBatch = 50
	// streamOverlap bounds how long a completion may take to commit after
	// its CompletedAt was stamped.
	streamOverlap = time.Minute
)

// completionCursor tracks what a stream has already sent. CompletedAt is
// stamped before the row commits, so a slow commit can land behind the newest
// row sent; every poll rereads a trailing window and skips ids it has seen.
type completionCursor struct {
	newest  time.Time
	overlap time.Duration
	sent    map[string]time.Time
}

func newCompletionCursor(start time.Time, overlap time.Duration) *completionCursor {
	return &completionCursor{newest: start, overlap: overlap, sent: map[string]time.Time{}}
}

// from is the lower bound of the next query.
func (c *completionCursor) from() time.Time {
	return c.newest.Add(-c.overlap)
}

// take returns the rows not sent yet and marks them sent.
func (c *completionCursor) take(rows []models.Completion) []models.Completion {
	var fresh []models.Completion
	for _, r := range rows {
		if _, ok := c.sent[r.ID]; ok {
			continue
		}
		c.sent[r.ID] = r.CompletedAt
		fresh = append(fresh, r)
		if r.CompletedAt.After(c.newest) {
			c.newest = r.CompletedAt
		}
	}

	floor := c.from()
	for id, at := range c.sent {
		if at.Before(floor) {
			delete(c.sent, id)
		}
	}
	return fresh
}

type completionStream struct {
	store  *services.TrackingStore
	userID string
	cursor *completionCursor
}

// newCompletionStream opens a stream at now. Completions already committed
// at that point are history and never sent.
func newCompletionStream(ctx context.Context, store *services.TrackingStore, userID string, now time.Time) *completionStream {
	s := &completionStream{
		store:  store,
		userID: userID,
		cursor: newCompletionCursor(now, streamOverlap),
	}
	if rows, err := store.CompletionsSince(ctx, userID, s.cursor.from(), streamBatch); err != nil {
		log.Printf("SSE init error for user %s: %v", userID, err)
	} else {
		s.cursor.take(rows)
	}
	return s
}

// poll writes one event per completion not sent yet and returns how many.
func (s *completionStream) poll(ctx context.Context, w *bufio.Writer) (int, error) {
	rows, err := s.store.CompletionsSince(ctx, s.userID, s.cursor.from(), streamBatch)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, comp := range s.cursor.take(rows) {
		payload, err := json.Marshal(comp)
		if err != nil {
			log.Printf("SSE encode error for completion %s: %v", comp.ID, err)
			continue
		}
		fmt.Fprintf(w, "event: completion\ndata: %s\n\n", payload)
		written++
	}
	return written, nil
}

// StreamCompletions pushes the caller's new completions as server-sent events.
func StreamCompletions(store *services.TrackingStore, clock clockwork.Clock, interval time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		// SSE headers
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		stream := newCompletionStream(c.UserContext(), store, userID, clock.Now().UTC())

		done := c.Context().Done()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			// Initial keepalive (comment event)
			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case <-ticker.C:
					n, err := stream.poll(context.Background(), w)
					if err != nil {
						log.Printf("SSE query error for user %s: %v", userID, err)
						continue
					}
					if n == 0 {
						w.WriteString(":\n\n")
					}
					if err := w.Flush(); err != nil {
						// Client disconnected
						return
					}

				case <-done:
					return
				}
			}
		})

		return nil
	}
}
