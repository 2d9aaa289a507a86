package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	triagectx "github.com/davidahmann/licensetriage/internal/context"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/policy"
	"github.com/davidahmann/licensetriage/internal/template"
	"github.com/davidahmann/licensetriage/pkg/types"
)

const (
	matchCompleteness = "ROLE: Document completeness validator"
	matchRisk         = "ROLE: Risk analysis expert"
	matchFinal        = "ROLE: Senior licensing decision maker"

	completeOK = `{"completeness_score": 95, "missing_documents": [], "processing_priority": "Standard"}`
	riskLow    = `{"risk_score": 2, "risk_level": "Low", "risk_factors": []}`
	approve    = `Here is my assessment: {"final_recommendation": "Approve", "confidence_score": 95, "decision_factors": ["complete application"]}`
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []types.AuditRecord
	err     error
}

func (r *memoryRecorder) Record(_ context.Context, rec types.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memoryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func rule(match string, responses ...generation.Response) generation.ScriptRule {
	return generation.ScriptRule{Match: []string{match}, Responses: responses}
}

func text(s string) generation.Response {
	return generation.Response{Text: s}
}

func happyRules() []generation.ScriptRule {
	return []generation.ScriptRule{
		rule(matchCompleteness, text(completeOK)),
		rule(matchRisk, text(riskLow)),
		rule(matchFinal, text(approve)),
	}
}

func testPolicy(t *testing.T) policy.LoadedPolicy {
	t.Helper()
	raw, err := yaml.Marshal(policy.Default())
	if err != nil {
		t.Fatalf("marshal policy: %v", err)
	}
	loaded, err := policy.ParsePolicy(raw)
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	return loaded
}

func newTestOrchestrator(t *testing.T, gen generation.Generator, rec Recorder, mutate ...func(*Config)) *Orchestrator {
	t.Helper()
	templates, err := template.Defaults()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	retrier := generation.NewRetrier(gen)
	retrier.BackoffBase = time.Millisecond
	retrier.BackoffMax = 2 * time.Millisecond
	retrier.CallTimeout = time.Second

	ids := 0
	var mu sync.Mutex
	cfg := Config{
		Templates: templates,
		Budget:    triagectx.DefaultBudget(),
		Policy:    testPolicy(t),
		Generator: retrier,
		Recorder:  rec,
		Now:       func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			ids++
			return fmt.Sprintf("dec-%d", ids)
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func sampleApplication(id string) types.ApplicationRecord {
	return types.ApplicationRecord{
		ApplicationID: id,
		LicenseType:   "Electrician",
		Fields: map[string]any{
			"applicant_info":      map[string]any{"name": "Sam Rivera", "city": "Austin"},
			"documents_submitted": []any{"application_form", "insurance", "background_check", "fee_receipt"},
			"background_info":     "No criminal history",
			"work_experience":     "8 years journeyman electrician",
		},
	}
}
