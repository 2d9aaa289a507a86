package decision

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	triagectx "github.com/davidahmann/licensetriage/internal/context"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/policy"
	"github.com/davidahmann/licensetriage/pkg/types"
)

func TestBuildFactorsOrdered(t *testing.T) {
	got := BuildFactors(FactorInput{
		Decision: types.ValidatedDecision{
			CompletenessScore: 75,
			MissingDocuments:  []string{"Proof of insurance"},
			RiskScore:         5,
			RiskLevel:         "Medium",
			RiskFactors:       []string{"misdemeanor 2019"},
			RecommendedAction: "Request_Additional_Info",
			Confidence:        80,
			ModelFactors:      []string{"insurance missing"},
		},
		Policy:  policy.Decision{MatchedRuleID: policy.RuleModerateBand},
		Flags:   types.ReviewFlags{ComplexCase: true},
		Dropped: []string{"other"},
	})
	want := []string{
		"policy:moderate_band",
		"confidence:80",
		"completeness:75",
		"risk:5",
		"risk_level:Medium",
		"recommended_action:Request_Additional_Info",
		"flag:complex_case",
		"missing_document:Proof of insurance",
		"risk_factor:misdemeanor 2019",
		"model_factor:insurance missing",
		"context_dropped:other",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("factors (-want +got):\n%s", diff)
	}
}

func TestBuildFactorsRecordsModelReviewRequest(t *testing.T) {
	got := BuildFactors(FactorInput{
		Decision: types.ValidatedDecision{RiskLevel: "Low", ModelRequestedReview: true},
		Policy:   policy.Decision{MatchedRuleID: policy.RuleModerateBand},
	})
	want := []string{
		"policy:moderate_band",
		"confidence:0",
		"completeness:0",
		"risk:0",
		"risk_level:Low",
		"model_requested_human_review",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("factors (-want +got):\n%s", diff)
	}
}

func TestConfigDigestDeterministic(t *testing.T) {
	in := ConfigInput{
		Model:         "gemini-2.5-flash",
		TemplatesHash: "sha256:templates",
		PolicyHash:    "sha256:policy",
		PolicyID:      "tdlr-escalation",
		PolicyVersion: "2024-06-01",
		Steps:         []string{"completeness_check@v2.1", "risk_assessment@v2.1"},
		Budget:        triagectx.DefaultBudget(),
		Parameters: map[string]generation.Parameters{
			"completeness_check": {Temperature: 0.1, MaxTokens: 2000},
		},
	}
	a, err := ConfigDigest(in)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	b, _ := ConfigDigest(in)
	if a != b {
		t.Fatalf("config digest not deterministic")
	}

	in.Model = "gpt-4"
	c, _ := ConfigDigest(in)
	if a == c {
		t.Fatalf("config digest should change with the model")
	}

	in.Budget.MaxTokens = 3000
	d, _ := ConfigDigest(in)
	if c == d {
		t.Fatalf("config digest should change with the budget")
	}
}

func TestConfigSettingsEncodesFloatsAsDecimals(t *testing.T) {
	settings, err := ConfigSettings(ConfigInput{
		Budget: triagectx.Budget{MaxTokens: 100, Categories: []triagectx.CategoryBudget{
			{Name: "safety", Share: 0.25, Fields: []string{"background_info"}},
		}},
		Parameters: map[string]generation.Parameters{"risk_assessment": {Temperature: 0.7, MaxTokens: 10}},
	})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	for _, want := range []string{`"share":"0.25"`, `"temperature":"0.7"`, `"max_tokens":100`} {
		if !strings.Contains(string(settings), want) {
			t.Fatalf("settings missing %s: %s", want, settings)
		}
	}
}

func TestContextDigest(t *testing.T) {
	a, err := ContextDigest([]string{"one", "two"})
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	b, _ := ContextDigest([]string{"two", "one"})
	if a == b {
		t.Fatalf("context digest should depend on order")
	}
}
