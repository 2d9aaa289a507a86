// Package events fans audit record events out to logs and Pub/Sub.
package events

import "github.com/davidahmann/licensetriage/pkg/types"

const (
	KindDecisionRecorded  = "decision.recorded"
	KindDecisionCorrected = "decision.corrected"
)

// AuditEvent is the summary published for every stored audit record.
type AuditEvent struct {
	Kind            string            `json:"kind"`
	Timestamp       string            `json:"timestamp"`
	DecisionID      string            `json:"decision_id"`
	ApplicationID   string            `json:"application_id"`
	LicenseType     string            `json:"license_type,omitempty"`
	Model           string            `json:"model"`
	PromptVersion   string            `json:"prompt_version"`
	Disposition     types.Disposition `json:"disposition"`
	ConfidenceScore int               `json:"confidence_score"`
	RiskScore       int               `json:"risk_score"`
	ComplianceCheck string            `json:"compliance_check"`
	Supersedes      string            `json:"supersedes,omitempty"`
	BodyDigest      string            `json:"body_digest"`
}

// FromRecord summarizes rec; digest is the sealed body digest.
func FromRecord(rec types.AuditRecord, digest string) AuditEvent {
	ev := AuditEvent{
		Kind:            KindDecisionRecorded,
		Timestamp:       rec.Timestamp,
		DecisionID:      rec.DecisionID,
		ApplicationID:   rec.ApplicationID,
		LicenseType:     rec.LicenseType,
		Model:           rec.Model,
		PromptVersion:   rec.PromptVersion,
		Disposition:     rec.Disposition,
		ConfidenceScore: rec.ConfidenceScore,
		RiskScore:       rec.RiskScore,
		ComplianceCheck: rec.ComplianceCheck,
		BodyDigest:      digest,
	}
	if rec.Supersedes != nil {
		ev.Kind = KindDecisionCorrected
		ev.Supersedes = *rec.Supersedes
	}
	return ev
}
