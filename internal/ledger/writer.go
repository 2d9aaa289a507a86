package ledger

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davidahmann/licensetriage/internal/events"
	"github.com/davidahmann/licensetriage/pkg/types"
)

// Writer persists audit records: seal and sign, store, emit an event, and
// queue a review notification when a human has to act.
type Writer struct {
	Store   Store
	Signer  Signer
	Emitter events.Emitter
	Logger  *zap.Logger
	// QueueReviews enables the review outbox for non-automated dispositions
	// that no human has signed off yet.
	QueueReviews bool
	Now          func() time.Time
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Writer) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// RegisterKey stores the signer's public key so stored records can be
// verified later.
func (w *Writer) RegisterKey(pub ed25519.PublicKey) error {
	return w.Store.PutKey(KeyRecord{
		KeyID:     w.Signer.KeyID(),
		PublicKey: pub,
		CreatedAt: w.now().UTC().Format(time.RFC3339),
	})
}

// Record stores rec exactly once. Event emission runs after the commit and
// only logs on failure; a stored record is never retracted.
func (w *Writer) Record(ctx context.Context, rec types.AuditRecord) error {
	entry, err := SealAuditRecord(rec, w.Signer)
	if err != nil {
		return err
	}

	var outbox *ReviewOutboxRecord
	if w.QueueReviews && !rec.Disposition.Automated() && rec.HumanReviewer == nil {
		n, err := NewReviewNotification(rec, w.now())
		if err != nil {
			return err
		}
		outbox = &n
	}

	err = w.Store.WithTx(func(tx Tx) error {
		if rec.Supersedes != nil {
			if _, ok := tx.GetAuditEntry(*rec.Supersedes); !ok {
				return fmt.Errorf("%w: superseded record %s", ErrNotFound, *rec.Supersedes)
			}
		}
		if err := tx.PutAuditEntry(entry); err != nil {
			return err
		}
		if outbox != nil {
			return tx.PutReviewOutbox(*outbox)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log := w.logger().With(
		zap.String("decision_id", rec.DecisionID),
		zap.String("application_id", rec.ApplicationID),
		zap.String("disposition", string(rec.Disposition)),
	)
	log.Info("audit record stored", zap.String("body_digest", entry.BodyDigest))

	if w.Emitter != nil {
		if err := w.Emitter.Emit(ctx, events.FromRecord(rec, entry.BodyDigest)); err != nil {
			log.Warn("audit event emission failed", zap.Error(err))
		}
	}
	return nil
}

// Correct verifies the stored original, builds the superseding record and
// stores it.
func (w *Writer) Correct(ctx context.Context, decisionID string, c Correction) (types.AuditRecord, error) {
	_, original, err := VerifyStored(w.Store, decisionID)
	if err != nil {
		return types.AuditRecord{}, err
	}
	rec, err := Correct(original, c, w.now())
	if err != nil {
		return types.AuditRecord{}, err
	}
	if err := w.Record(ctx, rec); err != nil {
		return types.AuditRecord{}, err
	}
	return rec, nil
}

// RecordConfig snapshots the configuration behind a config digest. Repeats
// are ignored.
func (w *Writer) RecordConfig(cfg ConfigVersionRecord) error {
	if cfg.CreatedAt == "" {
		cfg.CreatedAt = w.now().UTC().Format(time.RFC3339)
	}
	return w.Store.PutConfigVersion(cfg)
}
