package schema

import (
	"errors"
	"fmt"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/pkg/types"
)

var ErrIncompleteResults = errors.New("schema: pipeline results incomplete")

// Result holds the validated values of one task. Integers are int64, lists
// are []string; fields absent from the output are absent from Values.
type Result struct {
	Task   TaskType
	Values map[string]any
}

func (r Result) Int(name string) int {
	v, _ := r.Values[name].(int64)
	return int(v)
}

func (r Result) String(name string) string {
	v, _ := r.Values[name].(string)
	return v
}

func (r Result) Strings(name string) []string {
	v, _ := r.Values[name].([]string)
	return append([]string(nil), v...)
}

func (r Result) Bool(name string) bool {
	v, _ := r.Values[name].(bool)
	return v
}

// Canonical is the stable JSON form later pipeline steps are bound to.
func (r Result) Canonical() ([]byte, error) {
	return crypto.Canonicalize(r.Values)
}

// MergeTasks lists the tasks Merge needs one result for.
func MergeTasks() []TaskType {
	return []TaskType{TaskCompleteness, TaskRisk, TaskFinal}
}

// Merge assembles a decision from one result per task. The final
// recommendation's reviewer notes win over the risk assessment's.
func Merge(results ...Result) (types.ValidatedDecision, error) {
	byTask := map[TaskType]Result{}
	for _, r := range results {
		byTask[r.Task] = r
	}
	for _, task := range MergeTasks() {
		if _, ok := byTask[task]; !ok {
			return types.ValidatedDecision{}, fmt.Errorf("%w: no %s result", ErrIncompleteResults, task)
		}
	}

	completeness := byTask[TaskCompleteness]
	risk := byTask[TaskRisk]
	final := byTask[TaskFinal]

	d := types.ValidatedDecision{
		CompletenessScore:  completeness.Int("completeness_score"),
		MissingDocuments:   nonNil(completeness.Strings("missing_documents")),
		ProcessingPriority: completeness.String("processing_priority"),
		ConsistencyIssues:  completeness.Strings("consistency_issues"),

		RiskScore:   risk.Int("risk_score"),
		RiskLevel:   risk.String("risk_level"),
		RiskFactors: nonNil(risk.Strings("risk_factors")),

		ModelRequestedReview: risk.Bool("requires_human_review"),

		RecommendedAction: final.String("final_recommendation"),
		Confidence:        final.Int("confidence_score"),
		Conditions:        final.Strings("conditions"),
		ModelFactors:      final.Strings("decision_factors"),
		ReviewerNotes:     risk.String("reviewer_notes"),
	}
	if notes := final.String("reviewer_notes"); notes != "" {
		d.ReviewerNotes = notes
	}
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
