// Package notify delivers queued review requests to the human review queue.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davidahmann/licensetriage/internal/ledger"
)

type Poster interface {
	PostReview(ctx context.Context, msg ledger.ReviewMessage) error
}

// ProcessOutboxDue delivers due pending review notifications. Failed
// deliveries stay pending with exponential backoff; undecodable payloads
// are closed out so they are not retried forever.
func ProcessOutboxDue(ctx context.Context, store ledger.Store, poster Poster, now time.Time, limit int) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("missing store")
	}
	if poster == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	ts := now.UTC().Format(time.RFC3339)
	due, err := store.ListReviewOutboxDue(ts, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if rec.Status != ledger.OutboxPending {
			continue
		}

		var msg ledger.ReviewMessage
		if err := json.Unmarshal(rec.MessageJSON, &msg); err != nil {
			reason := "invalid message_json: " + err.Error()
			rec.LastError = &reason
			markSent(&rec, ts)
		} else if err := poster.PostReview(ctx, msg); err != nil {
			rec.NextAttemptAt = now.UTC().Add(nextAttempt(rec.AttemptCount)).Format(time.RFC3339)
			rec.AttemptCount++
			reason := err.Error()
			rec.LastError = &reason
			rec.UpdatedAt = ts
		} else {
			rec.AttemptCount++
			markSent(&rec, ts)
		}

		if err := store.PutReviewOutbox(rec); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func markSent(rec *ledger.ReviewOutboxRecord, ts string) {
	rec.Status = ledger.OutboxSent
	sentAt := ts
	rec.SentAt = &sentAt
	rec.UpdatedAt = ts
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, 80s, 160s, ... capped at 5m.
	base := 5 * time.Second
	if attemptCount <= 0 {
		return base
	}
	if attemptCount > 6 {
		return 5 * time.Minute
	}
	d := base << attemptCount
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// RunOutboxWorker polls for due review notifications until ctx is cancelled.
func RunOutboxWorker(ctx context.Context, store ledger.Store, poster Poster, pollInterval time.Duration, logger *zap.Logger) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := ProcessOutboxDue(ctx, store, poster, now, 25)
			if err != nil && ctx.Err() == nil {
				logger.Warn("review outbox pass failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("review outbox pass", zap.Int("processed", n))
			}
		}
	}
}
