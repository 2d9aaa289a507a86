package events

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type Emitter interface {
	Emit(ctx context.Context, event AuditEvent) error
}

// LogEmitter writes every event as a structured log line.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, event AuditEvent) error {
	e.logger.Info("audit event",
		zap.String("kind", event.Kind),
		zap.String("decision_id", event.DecisionID),
		zap.String("application_id", event.ApplicationID),
		zap.String("disposition", string(event.Disposition)),
		zap.Int("confidence_score", event.ConfidenceScore),
		zap.Int("risk_score", event.RiskScore),
		zap.String("compliance_check", event.ComplianceCheck),
		zap.String("supersedes", event.Supersedes),
	)
	return nil
}

type MultiEmitter struct {
	emitters []Emitter
}

func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit delivers to every emitter even when one fails.
func (m *MultiEmitter) Emit(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, e := range m.emitters {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
