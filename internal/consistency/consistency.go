// Package consistency measures how stable generated scores are when the
// same application is evaluated repeatedly.
package consistency

import (
	"context"
	"fmt"

	"github.com/davidahmann/licensetriage/pkg/types"
)

const (
	DefaultIterations = 3

	RatingHigh   = "High"
	RatingMedium = "Medium"

	// HighVarianceCeiling is the completeness variance below which a run
	// rates High.
	HighVarianceCeiling = 5.0
)

type Evaluator interface {
	Evaluate(ctx context.Context, record types.ApplicationRecord) (types.AuditRecord, error)
}

type Report struct {
	ApplicationID        string              `json:"application_id"`
	Iterations           int                 `json:"iterations"`
	CompletenessScores   []int               `json:"completeness_scores"`
	RiskScores           []int               `json:"risk_scores"`
	ConfidenceScores     []int               `json:"confidence_scores"`
	CompletenessVariance float64             `json:"completeness_score_variance"`
	RiskVariance         float64             `json:"risk_score_variance"`
	ConfidenceVariance   float64             `json:"confidence_score_variance"`
	Dispositions         []types.Disposition `json:"dispositions"`
	DispositionStable    bool                `json:"disposition_stable"`
	Rating               string              `json:"consistency_rating"`
}

// Run evaluates record iterations times in sequence. Any failed iteration
// fails the run; variance over a partial sample would overstate stability.
func Run(ctx context.Context, ev Evaluator, record types.ApplicationRecord, iterations int) (Report, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	report := Report{ApplicationID: record.ApplicationID, Iterations: iterations}

	for i := 1; i <= iterations; i++ {
		rec, err := ev.Evaluate(ctx, record)
		if err != nil {
			return Report{}, fmt.Errorf("consistency iteration %d/%d: %w", i, iterations, err)
		}
		report.CompletenessScores = append(report.CompletenessScores, rec.CompletenessScore)
		report.RiskScores = append(report.RiskScores, rec.RiskScore)
		report.ConfidenceScores = append(report.ConfidenceScores, rec.ConfidenceScore)
		report.Dispositions = append(report.Dispositions, rec.Disposition)
	}

	report.CompletenessVariance = Variance(report.CompletenessScores)
	report.RiskVariance = Variance(report.RiskScores)
	report.ConfidenceVariance = Variance(report.ConfidenceScores)
	report.DispositionStable = stable(report.Dispositions)
	report.Rating = RatingMedium
	if report.CompletenessVariance < HighVarianceCeiling {
		report.Rating = RatingHigh
	}
	return report, nil
}

// Variance is the sample variance (n-1 denominator); fewer than two values
// have zero variance.
func Variance(values []int) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return sq / float64(n-1)
}

func stable(ds []types.Disposition) bool {
	for _, d := range ds[1:] {
		if d != ds[0] {
			return false
		}
	}
	return true
}
