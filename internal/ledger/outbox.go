package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/licensetriage/pkg/types"
)

const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
)

// ReviewMessage is the payload delivered to the human review queue.
type ReviewMessage struct {
	DecisionID      string            `json:"decision_id"`
	ApplicationID   string            `json:"application_id"`
	LicenseType     string            `json:"license_type,omitempty"`
	Disposition     types.Disposition `json:"disposition"`
	ConfidenceScore int               `json:"confidence_score"`
	RiskScore       int               `json:"risk_score"`
	ComplianceCheck string            `json:"compliance_check"`
	DecisionFactors []string          `json:"decision_factors"`
	Text            string            `json:"text"`
}

// NewReviewNotification queues a review request for rec, due immediately.
func NewReviewNotification(rec types.AuditRecord, now time.Time) (ReviewOutboxRecord, error) {
	msg := ReviewMessage{
		DecisionID:      rec.DecisionID,
		ApplicationID:   rec.ApplicationID,
		LicenseType:     rec.LicenseType,
		Disposition:     rec.Disposition,
		ConfidenceScore: rec.ConfidenceScore,
		RiskScore:       rec.RiskScore,
		ComplianceCheck: rec.ComplianceCheck,
		DecisionFactors: rec.DecisionFactors,
		Text: fmt.Sprintf("Application %s needs %s (confidence %d, risk %d)",
			rec.ApplicationID, rec.Disposition, rec.ConfidenceScore, rec.RiskScore),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return ReviewOutboxRecord{}, err
	}

	ts := now.UTC().Format(time.RFC3339)
	return ReviewOutboxRecord{
		NotificationID: uuid.NewString(),
		DecisionID:     rec.DecisionID,
		Disposition:    string(rec.Disposition),
		MessageJSON:    payload,
		Status:         OutboxPending,
		NextAttemptAt:  ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}, nil
}
