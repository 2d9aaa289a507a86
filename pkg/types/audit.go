package types

// AuditRecord is the decision audit trail emitted once per successful
// orchestrator call. Records are never mutated; a correction is a new record
// whose Supersedes names the original decision_id.
type AuditRecord struct {
	DecisionID        string      `json:"decision_id"`
	Timestamp         string      `json:"timestamp"`
	ApplicationID     string      `json:"application_id"`
	LicenseType       string      `json:"license_type,omitempty"`
	Model             string      `json:"model"`
	TemplateName      string      `json:"template_name"`
	PromptVersion     string      `json:"prompt_version"`
	PromptTemplates   []string    `json:"prompt_templates,omitempty"`
	DecisionFactors   []string    `json:"decision_factors"`
	ConfidenceScore   int         `json:"confidence_score"`
	CompletenessScore int         `json:"completeness_score"`
	RiskScore         int         `json:"risk_score"`
	RecommendedAction string      `json:"recommended_action"`
	Disposition       Disposition `json:"disposition"`
	MissingDocuments  []string    `json:"missing_documents,omitempty"`
	HumanReviewer     *string     `json:"human_reviewer"`
	OverrideReason    *string     `json:"override_reason"`
	ComplianceCheck   string      `json:"compliance_check"`
	Supersedes        *string     `json:"supersedes,omitempty"`
	ContextDigest     string      `json:"context_digest,omitempty"`
	ConfigDigest      string      `json:"config_digest,omitempty"`
	Attempts          int         `json:"attempts,omitempty"`
}
