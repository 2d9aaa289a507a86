package context

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/davidahmann/licensetriage/pkg/types"
)

func sampleRecord() types.ApplicationRecord {
	return types.ApplicationRecord{
		ApplicationID: "TDLR-2024-001234",
		LicenseType:   "Master Electrician",
		Fields: map[string]any{
			"safety_notes":     strings.Repeat("lockout tagout verified. ", 4),
			"regulatory_items": []any{"state exam", "continuing education"},
			"risk_notes":       strings.Repeat("prior violation reviewed. ", 80),
			"applicant_info": map[string]any{
				"name":    "John Smith",
				"address": "123 Main St, Austin, TX",
			},
		},
	}
}

func requiredOnly() []CategoryBudget {
	return []CategoryBudget{
		{Name: "safety", Share: 0.2, Priority: 0, Required: true, Fields: []string{"safety_notes"}},
		{Name: "regulatory", Share: 0.2, Priority: 0, Required: true, Fields: []string{"regulatory_items"}},
	}
}

func requiredTokens(t *testing.T, record types.ApplicationRecord) int {
	t.Helper()
	res, err := Build(record, Budget{MaxTokens: 100000, Categories: requiredOnly()})
	if err != nil {
		t.Fatalf("build required: %v", err)
	}
	return res.Tokens
}

func TestBuildKeepsRequiredAndTruncatesOptional(t *testing.T) {
	record := sampleRecord()
	need := requiredTokens(t, record)

	budget := Budget{
		MaxTokens: need + 100,
		Categories: append(requiredOnly(),
			CategoryBudget{Name: "risk", Share: 0.5, Priority: 1, Fields: []string{"risk_notes"}},
		),
	}
	res, err := Build(record, budget)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Tokens > budget.MaxTokens {
		t.Fatalf("tokens %d exceed budget %d", res.Tokens, budget.MaxTokens)
	}
	if !strings.Contains(res.Text, "## safety\n") || !strings.Contains(res.Text, "## regulatory\n") {
		t.Fatalf("required sections missing:\n%s", res.Text)
	}
	if !strings.Contains(res.Text, "lockout") || !strings.Contains(res.Text, "continuing education") {
		t.Fatalf("required content missing:\n%s", res.Text)
	}
	if !strings.HasSuffix(res.Text, "[truncated]\n") {
		t.Fatalf("expected truncation marker at end:\n%s", res.Text)
	}

	risk := res.Sections[2]
	if risk.Category != "risk" || risk.Status != SectionTruncated {
		t.Fatalf("unexpected risk section: %+v", risk)
	}
	if risk.Tokens > 100 {
		t.Fatalf("risk section over its remaining budget: %d", risk.Tokens)
	}
	for _, s := range res.Sections[:2] {
		if s.Status != SectionIncluded {
			t.Fatalf("required section %s not included whole: %s", s.Category, s.Status)
		}
	}
}

func TestBuildFailsWhenRequiredDoNotFit(t *testing.T) {
	record := sampleRecord()
	need := requiredTokens(t, record)

	_, err := Build(record, Budget{MaxTokens: need - 1, Categories: requiredOnly()})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestBuildDropsOptionalWhenNothingRemains(t *testing.T) {
	record := sampleRecord()
	need := requiredTokens(t, record)

	budget := Budget{
		MaxTokens: need + 2,
		Categories: append(requiredOnly(),
			CategoryBudget{Name: "risk", Share: 0.5, Priority: 1, Fields: []string{"risk_notes"}},
		),
	}
	res, err := Build(record, budget)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := res.Dropped(); len(got) != 1 || got[0] != "risk" {
		t.Fatalf("expected risk dropped, got %v", got)
	}
	if strings.Contains(res.Text, "## risk") {
		t.Fatalf("dropped section rendered:\n%s", res.Text)
	}
}

func TestBuildReservesLaterRequiredCategories(t *testing.T) {
	record := sampleRecord()
	need := requiredTokens(t, record)

	// The optional category sorts first but may not eat what the required
	// categories behind it need.
	budget := Budget{
		MaxTokens: need + 20,
		Categories: []CategoryBudget{
			{Name: "risk", Share: 0.9, Priority: 0, Fields: []string{"risk_notes"}},
			{Name: "safety", Share: 0.05, Priority: 1, Required: true, Fields: []string{"safety_notes"}},
			{Name: "regulatory", Share: 0.05, Priority: 1, Required: true, Fields: []string{"regulatory_items"}},
		},
	}
	res, err := Build(record, budget)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Sections[0].Tokens > 20 {
		t.Fatalf("optional category took %d tokens", res.Sections[0].Tokens)
	}
	if res.Sections[1].Status != SectionIncluded || res.Sections[2].Status != SectionIncluded {
		t.Fatalf("required sections not included: %+v", res.Sections)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	record := sampleRecord()
	budget := DefaultBudget()
	budget.Categories = append(requiredOnly(),
		CategoryBudget{Name: "risk", Share: 0.3, Priority: 1, Fields: []string{"risk_notes"}},
		CategoryBudget{Name: "other", Share: 0.3, Priority: 2, Fields: []string{CategoryWildcard}},
	)

	first, err := Build(record, budget)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Build(record, budget)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if again.Text != first.Text {
			t.Fatalf("non-deterministic output on run %d", i)
		}
	}
}

func TestBuildOrdersByPriorityThenDeclaration(t *testing.T) {
	record := types.ApplicationRecord{Fields: map[string]any{"a": "1", "b": "2", "c": "3"}}
	res, err := Build(record, Budget{
		MaxTokens: 1000,
		Categories: []CategoryBudget{
			{Name: "late", Share: 0.3, Priority: 5, Fields: []string{"a"}},
			{Name: "first", Share: 0.3, Priority: 1, Fields: []string{"b"}},
			{Name: "second", Share: 0.3, Priority: 1, Fields: []string{"c"}},
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "## first\nb: \"2\"\n\n## second\nc: \"3\"\n\n## late\na: \"1\"\n\n"
	if res.Text != want {
		t.Fatalf("unexpected text:\n%q\nwant\n%q", res.Text, want)
	}
}

func TestBuildWildcardTakesUnclaimedFields(t *testing.T) {
	record := sampleRecord()
	res, err := Build(record, Budget{
		MaxTokens: 100000,
		Categories: append(requiredOnly(),
			CategoryBudget{Name: "other", Share: 0.5, Priority: 1, Fields: []string{CategoryWildcard}},
		),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	other := res.Text[strings.Index(res.Text, "## other"):]
	if !strings.Contains(other, "applicant_info:") || !strings.Contains(other, "risk_notes:") {
		t.Fatalf("wildcard missed unclaimed fields:\n%s", other)
	}
	if strings.Contains(other, "safety_notes:") {
		t.Fatalf("wildcard repeated a claimed field:\n%s", other)
	}
	if strings.Index(other, "address:") > strings.Index(other, "name:") {
		t.Fatalf("nested keys not sorted:\n%s", other)
	}
}

func TestBuildNormalizesNFC(t *testing.T) {
	record := types.ApplicationRecord{Fields: map[string]any{"name": "Jose\u0301"}}
	res, err := Build(record, Budget{
		MaxTokens:  100,
		Categories: []CategoryBudget{{Name: "applicant", Share: 1, Required: true, Fields: []string{"name"}}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(res.Text, "Jos\u00e9") {
		t.Fatalf("expected composed form, got %q", res.Text)
	}
}

func TestBudgetValidate(t *testing.T) {
	cases := map[string]Budget{
		"no tokens":  {Categories: requiredOnly()},
		"no cats":    {MaxTokens: 10},
		"over share": {MaxTokens: 10, Categories: []CategoryBudget{{Name: "a", Share: 0.6, Fields: []string{"x"}}, {Name: "b", Share: 0.5, Fields: []string{"y"}}}},
		"negative":   {MaxTokens: 10, Categories: []CategoryBudget{{Name: "a", Share: -0.1, Fields: []string{"x"}}}},
		"duplicate":  {MaxTokens: 10, Categories: []CategoryBudget{{Name: "a", Share: 0.1, Fields: []string{"x"}}, {Name: "a", Share: 0.1, Fields: []string{"y"}}}},
		"no fields":  {MaxTokens: 10, Categories: []CategoryBudget{{Name: "a", Share: 0.1}}},
	}
	for name, b := range cases {
		if err := b.Validate(); !errors.Is(err, ErrInvalidBudget) {
			t.Fatalf("%s: expected ErrInvalidBudget, got %v", name, err)
		}
	}
	if err := DefaultBudget().Validate(); err != nil {
		t.Fatalf("default budget invalid: %v", err)
	}
}

func TestEstimateAndTruncate(t *testing.T) {
	if EstimateTokens("") != 0 || EstimateTokens("abcd") != 1 || EstimateTokens("abcde") != 2 {
		t.Fatalf("unexpected estimates")
	}
	s := strings.Repeat("\u00e9", 100)
	cut := truncateTokens(s, 10)
	if !utf8.ValidString(cut) {
		t.Fatalf("truncation split a rune")
	}
	if EstimateTokens(cut) > 10 {
		t.Fatalf("truncated text over limit: %d", EstimateTokens(cut))
	}
	if truncateTokens("short", 10) != "short" {
		t.Fatalf("short text should be unchanged")
	}
}

func TestBuildIgnoresSharesWhenEverythingFits(t *testing.T) {
	record := sampleRecord()
	whole, err := Build(record, Budget{MaxTokens: 100000, Categories: []CategoryBudget{
		{Name: "risk", Share: 1, Fields: []string{"risk_notes"}},
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	need := requiredTokens(t, record) + whole.Tokens

	// risk outranks applicant but a 1% share would cut it. The
	// whole context fits, so nothing is truncated.
	budget := Budget{
		MaxTokens: need + 200,
		Categories: append(requiredOnly(),
			CategoryBudget{Name: "risk", Share: 0.01, Priority: 1, Fields: []string{"risk_notes"}},
			CategoryBudget{Name: "applicant", Share: 0.5, Priority: 2, Fields: []string{"applicant_info"}},
		),
	}
	res, err := Build(record, budget)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := res.Truncated(); len(got) != 0 {
		t.Fatalf("expected no truncation, got %v", got)
	}
	for _, s := range res.Sections {
		if s.Status != SectionIncluded {
			t.Fatalf("section %s: %s", s.Category, s.Status)
		}
	}
	if res.Tokens > budget.MaxTokens {
		t.Fatalf("tokens %d exceed budget %d", res.Tokens, budget.MaxTokens)
	}
}
