package types

type Disposition string

const (
	DispositionAutomatedApprove     Disposition = "automated_approve"
	DispositionAutomatedDeny        Disposition = "automated_deny"
	DispositionStaffReview          Disposition = "staff_review"
	DispositionManagementEscalation Disposition = "management_escalation"
)

func (d Disposition) Valid() bool {
	switch d {
	case DispositionAutomatedApprove, DispositionAutomatedDeny, DispositionStaffReview, DispositionManagementEscalation:
		return true
	default:
		return false
	}
}

// Automated reports whether the disposition is final without a human.
func (d Disposition) Automated() bool {
	return d == DispositionAutomatedApprove || d == DispositionAutomatedDeny
}

// ValidatedDecision is the merged, schema-checked output of one pipeline run.
type ValidatedDecision struct {
	CompletenessScore  int      `json:"completeness_score"`
	MissingDocuments   []string `json:"missing_documents"`
	ProcessingPriority string   `json:"processing_priority"`
	ConsistencyIssues  []string `json:"consistency_issues,omitempty"`

	RiskScore   int      `json:"risk_score"`
	RiskLevel   string   `json:"risk_level"`
	RiskFactors []string `json:"risk_factors"`
	// ModelRequestedReview is the risk assessment's requires_human_review.
	// Escalation does not read it; it is recorded as a decision factor.
	ModelRequestedReview bool `json:"requires_human_review,omitempty"`

	RecommendedAction string   `json:"recommended_action"`
	Confidence        int      `json:"confidence_score"`
	Conditions        []string `json:"conditions,omitempty"`
	ModelFactors      []string `json:"model_factors,omitempty"`
	ReviewerNotes     string   `json:"reviewer_notes,omitempty"`
}
