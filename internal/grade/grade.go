package grade

import (
	"sort"
	"strings"

	"github.com/davidahmann/licensetriage/pkg/types"
)

const (
	OutcomePassed  = "passed"
	OutcomeFlagged = "flagged"
	OutcomeFailed  = "failed"
)

// ApprovalCompletenessFloor is the completeness an automated approval must
// exceed; a score of exactly 80 is flagged.
const ApprovalCompletenessFloor = 80

type Result struct {
	Outcome string
	Reasons []string
}

// String is the value recorded as compliance_check.
func (r Result) String() string {
	if len(r.Reasons) == 0 {
		return r.Outcome
	}
	return r.Outcome + ": " + strings.Join(r.Reasons, ",")
}

type Input struct {
	Decision    types.ValidatedDecision
	Disposition types.Disposition
	PolicyHash  string
	Factors     []string
}

// Evaluate checks a decision against the licensing criteria that hold
// regardless of what the model said.
func Evaluate(in Input) Result {
	failed := map[string]bool{}
	flagged := map[string]bool{}

	if strings.TrimSpace(in.PolicyHash) == "" {
		failed["missing_policy_hash"] = true
	}
	if !in.Disposition.Valid() {
		failed["invalid_disposition"] = true
	}
	if len(in.Factors) == 0 {
		failed["missing_decision_factors"] = true
	}

	d := in.Decision
	if in.Disposition == types.DispositionAutomatedApprove {
		if d.CompletenessScore <= ApprovalCompletenessFloor {
			flagged["approval_below_completeness_floor"] = true
		}
		if len(d.MissingDocuments) > 0 {
			flagged["approval_with_missing_documents"] = true
		}
		if d.RiskLevel == "High" || d.RiskLevel == "Critical" {
			flagged["approval_with_high_risk_level"] = true
		}
		if d.ModelRequestedReview {
			flagged["approval_despite_review_request"] = true
		}
	}
	if in.Disposition == types.DispositionAutomatedDeny && len(d.ModelFactors) == 0 && len(d.RiskFactors) == 0 {
		flagged["denial_without_factors"] = true
	}

	switch {
	case len(failed) > 0:
		return Result{Outcome: OutcomeFailed, Reasons: keys(failed)}
	case len(flagged) > 0:
		return Result{Outcome: OutcomeFlagged, Reasons: keys(flagged)}
	default:
		return Result{Outcome: OutcomePassed}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
