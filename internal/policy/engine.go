package policy

import (
	"fmt"

	"github.com/davidahmann/licensetriage/pkg/types"
)

const (
	RuleLowConfidence  = "low_confidence"
	RuleHighRisk       = "high_risk"
	RuleReviewFlag     = "review_flag"
	RuleModerateBand   = "moderate_band"
	RuleActionPrefix   = "action:"
	RuleUnmappedAction = "unmapped_action"
)

type Decision struct {
	Disposition   types.Disposition
	Reason        string
	MatchedRuleID string
	ReasonCodes   []string
	PolicyID      string
	PolicyVersion string
	PolicyHash    string
}

// Decide applies the escalation rules in order; the first match wins.
func Decide(p Policy, d types.ValidatedDecision, flags types.ReviewFlags) Decision {
	t := p.Thresholds.Resolve()
	decision := Decision{PolicyID: p.PolicyID, PolicyVersion: p.PolicyVersion}

	match := func(id string, disposition types.Disposition, reason string) Decision {
		decision.Disposition = disposition
		decision.MatchedRuleID = id
		decision.Reason = reason
		decision.ReasonCodes = append(decision.ReasonCodes, "RULE:"+id)
		return decision
	}

	switch {
	case d.Confidence < t.ManagementConfidenceBelow:
		return match(RuleLowConfidence, types.DispositionManagementEscalation,
			fmt.Sprintf("confidence %d below %d", d.Confidence, t.ManagementConfidenceBelow))
	case d.RiskScore > t.ManagementRiskAbove:
		return match(RuleHighRisk, types.DispositionManagementEscalation,
			fmt.Sprintf("risk %d above %d", d.RiskScore, t.ManagementRiskAbove))
	case flags.Any():
		return match(RuleReviewFlag, types.DispositionStaffReview, flagReason(flags))
	case d.RiskScore >= t.StaffRiskFrom || d.Confidence < t.StaffConfidenceBelow:
		return match(RuleModerateBand, types.DispositionStaffReview,
			fmt.Sprintf("risk %d / confidence %d outside automated band", d.RiskScore, d.Confidence))
	}

	if disposition, ok := p.ActionDispositions[d.RecommendedAction]; ok {
		return match(RuleActionPrefix+d.RecommendedAction, disposition, "recommended "+d.RecommendedAction)
	}

	fallback := p.Fallback
	if fallback == "" {
		fallback = types.DispositionStaffReview
	}
	return match(RuleUnmappedAction, fallback, fmt.Sprintf("no disposition for action %q", d.RecommendedAction))
}

func flagReason(flags types.ReviewFlags) string {
	switch {
	case flags.PolicyGrayArea && flags.ComplexCase:
		return "policy gray area, complex case"
	case flags.PolicyGrayArea:
		return "policy gray area"
	default:
		return "complex case"
	}
}
