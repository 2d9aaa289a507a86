package consistency

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/davidahmann/licensetriage/pkg/types"
)

// Score bands a labelled case can expect. They follow the escalation
// thresholds: completeness above the approval floor is high, risk in the
// automated band is low and risk past the management line is high.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// CompletenessBand buckets a completeness score: high above 80, low below 60.
func CompletenessBand(score int) string {
	switch {
	case score > 80:
		return BandHigh
	case score < 60:
		return BandLow
	default:
		return BandMedium
	}
}

// RiskBand buckets a risk score: low below 4, high above 7.
func RiskBand(score int) string {
	switch {
	case score < 4:
		return BandLow
	case score > 7:
		return BandHigh
	default:
		return BandMedium
	}
}

// Case is one labelled application. Empty expectations are not scored.
type Case struct {
	Name                 string                  `json:"name"`
	Application          types.ApplicationRecord `json:"application"`
	ExpectedCompleteness string                  `json:"expected_completeness,omitempty"`
	ExpectedRisk         string                  `json:"expected_risk,omitempty"`
}

func (c Case) validate() error {
	if c.Name == "" {
		return fmt.Errorf("case name is required")
	}
	for _, band := range []string{c.ExpectedCompleteness, c.ExpectedRisk} {
		switch band {
		case "", BandLow, BandMedium, BandHigh:
		default:
			return fmt.Errorf("case %s: unknown band %q", c.Name, band)
		}
	}
	return nil
}

type CaseResult struct {
	Name              string            `json:"name"`
	ApplicationID     string            `json:"application_id"`
	ProcessingTimeMS  int64             `json:"processing_time_ms"`
	CompletenessScore int               `json:"completeness_score"`
	RiskScore         int               `json:"risk_score"`
	CompletenessBand  string            `json:"completeness_band,omitempty"`
	RiskBand          string            `json:"risk_band,omitempty"`
	Disposition       types.Disposition `json:"disposition,omitempty"`
	// Checks counts the expectations this case carries, Matches how many
	// held. Accuracy is Matches/Checks and absent for unlabelled cases.
	Checks   int      `json:"checks"`
	Matches  int      `json:"matches"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type SuiteReport struct {
	TotalTests        int          `json:"total_tests"`
	Succeeded         int          `json:"succeeded"`
	Failed            int          `json:"failed"`
	ProcessingTimesMS []int64      `json:"processing_times"`
	AverageTimeMS     float64      `json:"average_processing_time_ms"`
	AccuracyScores    []float64    `json:"accuracy_scores"`
	Accuracy          float64      `json:"overall_accuracy"`
	Results           []CaseResult `json:"test_results"`
}

type SuiteOptions struct {
	// Now is the clock processing times are measured with.
	Now func() time.Time
}

// RunSuite evaluates every case in order, timing each one and scoring its
// bands against the labels. A failed case is reported and counted against
// accuracy when it carries expectations; the run carries on.
func RunSuite(ctx context.Context, ev Evaluator, cases []Case, opts SuiteOptions) (SuiteReport, error) {
	if len(cases) == 0 {
		return SuiteReport{}, fmt.Errorf("no cases")
	}
	for _, c := range cases {
		if err := c.validate(); err != nil {
			return SuiteReport{}, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	report := SuiteReport{
		TotalTests:        len(cases),
		ProcessingTimesMS: []int64{},
		AccuracyScores:    []float64{},
	}
	checks, matches := 0, 0
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return SuiteReport{}, err
		}
		res := CaseResult{Name: c.Name, ApplicationID: c.Application.ApplicationID}
		res.Checks = expectationCount(c)

		start := now()
		rec, err := ev.Evaluate(ctx, c.Application)
		res.ProcessingTimeMS = now().Sub(start).Milliseconds()
		report.ProcessingTimesMS = append(report.ProcessingTimesMS, res.ProcessingTimeMS)

		if err != nil {
			res.Error = err.Error()
			report.Failed++
		} else {
			report.Succeeded++
			res.CompletenessScore = rec.CompletenessScore
			res.RiskScore = rec.RiskScore
			res.CompletenessBand = CompletenessBand(rec.CompletenessScore)
			res.RiskBand = RiskBand(rec.RiskScore)
			res.Disposition = rec.Disposition
			if c.ExpectedCompleteness != "" && c.ExpectedCompleteness == res.CompletenessBand {
				res.Matches++
			}
			if c.ExpectedRisk != "" && c.ExpectedRisk == res.RiskBand {
				res.Matches++
			}
		}

		if res.Checks > 0 {
			acc := float64(res.Matches) / float64(res.Checks)
			res.Accuracy = &acc
			report.AccuracyScores = append(report.AccuracyScores, acc)
			checks += res.Checks
			matches += res.Matches
		}
		report.Results = append(report.Results, res)
	}

	var total int64
	for _, ms := range report.ProcessingTimesMS {
		total += ms
	}
	report.AverageTimeMS = float64(total) / float64(len(report.ProcessingTimesMS))
	if checks > 0 {
		report.Accuracy = float64(matches) / float64(checks)
	}
	return report, nil
}

func expectationCount(c Case) int {
	n := 0
	if c.ExpectedCompleteness != "" {
		n++
	}
	if c.ExpectedRisk != "" {
		n++
	}
	return n
}

type caseFile struct {
	Cases []Case `json:"cases"`
}

// LoadCases reads a JSON case file: {"cases": [...]}.
func LoadCases(path string) ([]Case, error) {
	// #nosec G304 -- path comes from operator CLI argument.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f caseFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cases %s: %w", path, err)
	}
	if len(f.Cases) == 0 {
		return nil, fmt.Errorf("cases %s: no cases", path)
	}
	for _, c := range f.Cases {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("cases %s: %w", path, err)
		}
	}
	return f.Cases, nil
}
