package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/licensetriage/pkg/types"
)

// DefaultBatchConcurrency matches the intake's "up to 50 simultaneously".
const DefaultBatchConcurrency = 50

type BatchOptions struct {
	Concurrency int
	// AbandonOnCancel passes batch cancellation into in-flight calls. By
	// default started calls run to completion and keep their records.
	AbandonOnCancel bool
}

// BatchResult is the outcome for one application, in input order. Exactly
// one of Record and Err is set.
type BatchResult struct {
	ApplicationID string
	Record        *types.AuditRecord
	Err           error
}

// ProcessBatch processes records independently. A failed application never
// cancels its siblings; applications not yet started when ctx is cancelled
// fail with the cancellation error.
func (o *Orchestrator) ProcessBatch(ctx context.Context, records []types.ApplicationRecord, opts BatchOptions) []BatchResult {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	results := make([]BatchResult, len(records))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, record := range records {
		results[i].ApplicationID = record.ApplicationID
		if err := ctx.Err(); err != nil {
			results[i].Err = &Failure{ApplicationID: record.ApplicationID, Stage: StageCancelled, Err: err}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = &Failure{ApplicationID: record.ApplicationID, Stage: StageCancelled, Err: err}
				return nil
			}
			callCtx := ctx
			if !opts.AbandonOnCancel {
				callCtx = context.WithoutCancel(ctx)
			}
			rec, err := o.Process(callCtx, record)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Record = &rec
			return nil
		})
	}
	_ = g.Wait()
	return results
}
