package policy

import (
	"fmt"

	"github.com/davidahmann/licensetriage/pkg/types"
)

type Policy struct {
	PolicyID           string                       `yaml:"policy_id"`
	PolicyVersion      string                       `yaml:"policy_version"`
	Thresholds         Thresholds                   `yaml:"thresholds"`
	ActionDispositions map[string]types.Disposition `yaml:"action_dispositions"`
	Fallback           types.Disposition            `yaml:"fallback"`
}

// Thresholds bound the automated band. An unset threshold takes the
// default; an explicit 0 is kept, so staff_risk_from: 0 sends every
// application to a person.
type Thresholds struct {
	// confidence below this escalates to management
	ManagementConfidenceBelow *int `yaml:"management_confidence_below,omitempty"`
	// risk above this escalates to management
	ManagementRiskAbove *int `yaml:"management_risk_above,omitempty"`
	// risk at or above this goes to staff
	StaffRiskFrom *int `yaml:"staff_risk_from,omitempty"`
	// confidence below this goes to staff
	StaffConfidenceBelow *int `yaml:"staff_confidence_below,omitempty"`
}

// Limits are thresholds with every default applied.
type Limits struct {
	ManagementConfidenceBelow int
	ManagementRiskAbove       int
	StaffRiskFrom             int
	StaffConfidenceBelow      int
}

const (
	defaultManagementConfidenceBelow = 70
	defaultManagementRiskAbove       = 7
	defaultStaffRiskFrom             = 4
	defaultStaffConfidenceBelow      = 90
)

// Threshold returns a pointer for building Thresholds in code.
func Threshold(v int) *int { return &v }

func (t Thresholds) Resolve() Limits {
	pick := func(v *int, def int) int {
		if v == nil {
			return def
		}
		return *v
	}
	return Limits{
		ManagementConfidenceBelow: pick(t.ManagementConfidenceBelow, defaultManagementConfidenceBelow),
		ManagementRiskAbove:       pick(t.ManagementRiskAbove, defaultManagementRiskAbove),
		StaffRiskFrom:             pick(t.StaffRiskFrom, defaultStaffRiskFrom),
		StaffConfidenceBelow:      pick(t.StaffConfidenceBelow, defaultStaffConfidenceBelow),
	}
}

// Default is the TDLR escalation policy.
func Default() Policy {
	return Policy{
		PolicyID:      "tdlr-escalation",
		PolicyVersion: "2024-06-01",
		ActionDispositions: map[string]types.Disposition{
			"Approve":             types.DispositionAutomatedApprove,
			"Conditional_Approve": types.DispositionAutomatedApprove,
			"Deny":                types.DispositionAutomatedDeny,
		},
		Fallback: types.DispositionStaffReview,
	}
}

func (p Policy) Validate() error {
	t := p.Thresholds.Resolve()
	if t.ManagementConfidenceBelow < 0 || t.StaffConfidenceBelow > 100 {
		return fmt.Errorf("policy %s: confidence thresholds out of range", p.PolicyID)
	}
	if t.StaffConfidenceBelow < t.ManagementConfidenceBelow {
		return fmt.Errorf("policy %s: staff_confidence_below must be >= management_confidence_below", p.PolicyID)
	}
	if t.StaffRiskFrom < 0 || t.ManagementRiskAbove < 0 {
		return fmt.Errorf("policy %s: risk thresholds must not be negative", p.PolicyID)
	}
	if t.StaffRiskFrom > t.ManagementRiskAbove {
		return fmt.Errorf("policy %s: staff_risk_from must be <= management_risk_above", p.PolicyID)
	}
	for action, d := range p.ActionDispositions {
		if !d.Valid() {
			return fmt.Errorf("policy %s: action %s maps to unknown disposition %q", p.PolicyID, action, d)
		}
	}
	if p.Fallback != "" && !p.Fallback.Valid() {
		return fmt.Errorf("policy %s: unknown fallback disposition %q", p.PolicyID, p.Fallback)
	}
	return nil
}
