package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/davidahmann/licensetriage/pkg/types"
)

func TestCorrectBuildsSupersedingRecord(t *testing.T) {
	original := sampleRecord()
	now := time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)

	rec, err := Correct(original, Correction{
		Reviewer:    " j.doe ",
		Reason:      "verified references by phone",
		Disposition: types.DispositionAutomatedApprove,
	}, now)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}

	if rec.DecisionID == "" || rec.DecisionID == original.DecisionID {
		t.Fatalf("expected fresh decision id, got %q", rec.DecisionID)
	}
	if rec.Supersedes == nil || *rec.Supersedes != "d1" {
		t.Fatalf("expected supersedes d1, got %v", rec.Supersedes)
	}
	if rec.HumanReviewer == nil || *rec.HumanReviewer != "j.doe" {
		t.Fatalf("unexpected reviewer %v", rec.HumanReviewer)
	}
	if rec.OverrideReason == nil || *rec.OverrideReason != "verified references by phone" {
		t.Fatalf("unexpected reason %v", rec.OverrideReason)
	}
	if rec.Timestamp != "2024-06-02T09:30:00Z" {
		t.Fatalf("unexpected timestamp %s", rec.Timestamp)
	}
	if rec.Disposition != types.DispositionAutomatedApprove || rec.RecommendedAction != "approve" {
		t.Fatalf("unexpected outcome %s/%s", rec.Disposition, rec.RecommendedAction)
	}
	last := rec.DecisionFactors[len(rec.DecisionFactors)-1]
	if last != "override:j.doe" {
		t.Fatalf("expected override factor, got %q", last)
	}
	if len(original.DecisionFactors) != 2 || original.HumanReviewer != nil {
		t.Fatalf("original record was modified: %+v", original)
	}
}

func TestCorrectRejectsIncompleteInput(t *testing.T) {
	cases := []Correction{
		{Reason: "x"},
		{Reviewer: "j.doe", Reason: "  "},
		{Reviewer: "j.doe", Reason: "x", Disposition: "maybe"},
	}
	for _, c := range cases {
		if _, err := Correct(sampleRecord(), c, time.Now()); !errors.Is(err, ErrInvalidCorrection) {
			t.Fatalf("expected ErrInvalidCorrection for %+v, got %v", c, err)
		}
	}
}
