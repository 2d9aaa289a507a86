package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/licensetriage/pkg/types"
)

var ErrInvalidCorrection = errors.New("ledger: invalid correction")

// Correction is a human override of a recorded decision.
type Correction struct {
	Reviewer    string            `json:"human_reviewer"`
	Reason      string            `json:"override_reason"`
	Disposition types.Disposition `json:"disposition,omitempty"`
	Action      string            `json:"recommended_action,omitempty"`
}

// Correct builds the record that supersedes original. The original is left
// untouched; the new record carries a fresh id and names the original.
func Correct(original types.AuditRecord, c Correction, now time.Time) (types.AuditRecord, error) {
	reviewer := strings.TrimSpace(c.Reviewer)
	reason := strings.TrimSpace(c.Reason)
	if reviewer == "" || reason == "" {
		return types.AuditRecord{}, fmt.Errorf("%w: reviewer and reason are required", ErrInvalidCorrection)
	}
	if c.Disposition != "" && !c.Disposition.Valid() {
		return types.AuditRecord{}, fmt.Errorf("%w: unknown disposition %q", ErrInvalidCorrection, c.Disposition)
	}
	if original.DecisionID == "" {
		return types.AuditRecord{}, fmt.Errorf("%w: original has no decision_id", ErrInvalidCorrection)
	}

	rec := original
	rec.DecisionID = uuid.NewString()
	rec.Timestamp = now.UTC().Format(time.RFC3339)
	rec.HumanReviewer = &reviewer
	rec.OverrideReason = &reason
	supersedes := original.DecisionID
	rec.Supersedes = &supersedes

	rec.DecisionFactors = append(append([]string{}, original.DecisionFactors...), "override:"+reviewer)
	if c.Disposition != "" {
		rec.Disposition = c.Disposition
	}
	if c.Action != "" {
		rec.RecommendedAction = c.Action
	}
	rec.PromptTemplates = append([]string(nil), original.PromptTemplates...)
	rec.MissingDocuments = append([]string(nil), original.MissingDocuments...)
	return rec, nil
}
