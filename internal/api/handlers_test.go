package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/davidahmann/licensetriage/internal/app"
	"github.com/davidahmann/licensetriage/internal/auth"
	"github.com/davidahmann/licensetriage/internal/config"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/ledger"
	"github.com/davidahmann/licensetriage/pkg/types"
)

const (
	devToken      = "test-token"
	reviewerToken = "tok-jane"
)

func scripted() *generation.Scripted {
	text := func(s string) generation.Response { return generation.Response{Text: s} }
	return generation.NewScripted("scripted-test",
		generation.ScriptRule{Match: []string{"Unreachable Upstream"}, Responses: []generation.Response{{Kind: "fatal"}}},
		generation.ScriptRule{
			Match:     []string{"Garbled Output", "ROLE: Risk analysis expert"},
			Responses: []generation.Response{text(`{"risk_score": 2}`)},
		},
		generation.ScriptRule{Match: []string{"ROLE: Document completeness validator"}, Responses: []generation.Response{
			text(`{"completeness_score": 95, "missing_documents": [], "processing_priority": "Standard"}`),
		}},
		generation.ScriptRule{Match: []string{"ROLE: Risk analysis expert"}, Responses: []generation.Response{
			text(`{"risk_score": 2, "risk_level": "Low", "risk_factors": []}`),
		}},
		generation.ScriptRule{Match: []string{"ROLE: Senior licensing decision maker"}, Responses: []generation.Response{
			text(`{"final_recommendation": "Approve", "confidence_score": 95, "decision_factors": ["complete"]}`),
		}},
	)
}

func newTestRouter(t *testing.T) (http.Handler, *app.Services) {
	t.Helper()
	svc, err := app.Build(context.Background(), config.Config{PolicyPath: "../../policies/escalation.yaml"}, app.Options{Generator: scripted()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	h := &Handler{
		Auth:      &auth.TokenAuthenticator{DevToken: devToken, Reviewers: map[string]string{reviewerToken: "jane"}},
		Processor: svc.Orchestrator,
		Corrector: svc.Writer,
		Store:     svc.Store,
		Logger:    svc.Logger,
	}
	return NewRouter(h), svc
}

func application(id, applicant string) string {
	return `{"application_id": "` + id + `", "license_type": "Electrician",
  "applicant_info": {"name": "` + applicant + `"},
  "documents_submitted": ["application_form"],
  "background_info": "No criminal history"}`
}

func do(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func processOne(t *testing.T, router http.Handler) types.AuditRecord {
	t.Helper()
	res := do(t, router, http.MethodPost, "/v1/applications", devToken, application("APP-1", "Sam Rivera"))
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var rec types.AuditRecord
	if err := json.Unmarshal(res.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec
}

func TestHealthNeedsNoAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	if res := do(t, router, http.MethodGet, "/healthz", "", ""); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestEndpointsRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	cases := []struct{ method, path string }{
		{http.MethodPost, "/v1/applications"},
		{http.MethodPost, "/v1/applications/batch"},
		{http.MethodGet, "/v1/audit/abc"},
		{http.MethodGet, "/v1/verify/abc"},
		{http.MethodPost, "/v1/audit/abc/corrections"},
		{http.MethodGet, "/v1/pack/abc"},
	}
	for _, tc := range cases {
		if res := do(t, router, tc.method, tc.path, "", "{}"); res.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, res.Code)
		}
		if res := do(t, router, tc.method, tc.path, "wrong", "{}"); res.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 for bad token, got %d", tc.method, tc.path, res.Code)
		}
	}
}

func TestProcessApplication(t *testing.T) {
	router, svc := newTestRouter(t)
	rec := processOne(t, router)
	if rec.Disposition != types.DispositionAutomatedApprove || rec.ApplicationID != "APP-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, ok := svc.Store.GetAuditEntry(rec.DecisionID); !ok {
		t.Fatalf("expected stored entry")
	}
}

func TestProcessApplicationErrors(t *testing.T) {
	router, _ := newTestRouter(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{invalid", http.StatusBadRequest},
		{"missing id", `{"license_type": "Electrician"}`, http.StatusBadRequest},
		{"generation failure", application("APP-2", "Unreachable Upstream"), http.StatusBadGateway},
		{"schema failure", application("APP-3", "Garbled Output"), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := do(t, router, http.MethodPost, "/v1/applications", devToken, tc.body)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, res.Code, res.Body.String())
			}
		})
	}
}

func TestProcessBatch(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"applications": [` + application("APP-1", "Sam Rivera") + `,` + application("APP-2", "Unreachable Upstream") + `]}`
	res := do(t, router, http.MethodPost, "/v1/applications/batch", devToken, body)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp BatchResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Succeeded != 1 || resp.Failed != 1 || len(resp.Results) != 2 {
		t.Fatalf("unexpected batch response %+v", resp)
	}
	if resp.Results[0].Record == nil || resp.Results[1].Error == "" || resp.Results[1].Stage != "generate" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}

	if res := do(t, router, http.MethodPost, "/v1/applications/batch", devToken, `{"applications": []}`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", res.Code)
	}
}

func TestAuditAndVerify(t *testing.T) {
	router, svc := newTestRouter(t)
	rec := processOne(t, router)

	res := do(t, router, http.MethodGet, "/v1/audit/"+rec.DecisionID, devToken, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var audit AuditResponse
	if err := json.Unmarshal(res.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if audit.Record.DecisionID != rec.DecisionID || !strings.HasPrefix(audit.BodyDigest, "sha256:") {
		t.Fatalf("unexpected audit response %+v", audit)
	}

	res = do(t, router, http.MethodGet, "/v1/verify/"+rec.DecisionID, devToken, "")
	var verify VerifyResponse
	_ = json.Unmarshal(res.Body.Bytes(), &verify)
	if res.Code != http.StatusOK || !verify.Valid {
		t.Fatalf("expected valid record, got %d %+v", res.Code, verify)
	}

	for _, path := range []string{"/v1/audit/missing", "/v1/verify/missing", "/v1/pack/missing"} {
		if res := do(t, router, http.MethodGet, path, devToken, ""); res.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, res.Code)
		}
	}

	// A record whose key was never registered cannot be verified.
	rec.DecisionID = "orphan"
	entry, err := ledger.SealAuditRecord(rec, stubSigner{})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := svc.Store.PutAuditEntry(entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	res = do(t, router, http.MethodGet, "/v1/verify/orphan", devToken, "")
	verify = VerifyResponse{}
	_ = json.Unmarshal(res.Body.Bytes(), &verify)
	if res.Code != http.StatusOK || verify.Valid || verify.Error == "" {
		t.Fatalf("expected invalid verification, got %d %+v", res.Code, verify)
	}
}

func TestCorrections(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := processOne(t, router)
	path := "/v1/audit/" + rec.DecisionID + "/corrections"

	res := do(t, router, http.MethodPost, path, reviewerToken, `{"human_reviewer": "someone-else", "override_reason": "missing insurance", "disposition": "automated_deny"}`)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var corrected types.AuditRecord
	if err := json.Unmarshal(res.Body.Bytes(), &corrected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if corrected.Supersedes == nil || *corrected.Supersedes != rec.DecisionID {
		t.Fatalf("expected supersedes link, got %+v", corrected.Supersedes)
	}
	if corrected.HumanReviewer == nil || *corrected.HumanReviewer != "jane" {
		t.Fatalf("expected reviewer from token, got %v", corrected.HumanReviewer)
	}

	res = do(t, router, http.MethodGet, "/v1/audit/"+rec.DecisionID, devToken, "")
	var audit AuditResponse
	_ = json.Unmarshal(res.Body.Bytes(), &audit)
	if len(audit.Corrections) != 1 || audit.Corrections[0] != corrected.DecisionID {
		t.Fatalf("expected correction listed, got %v", audit.Corrections)
	}

	if res := do(t, router, http.MethodPost, path, devToken, `{"human_reviewer": "ops"}`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", res.Code)
	}
	if res := do(t, router, http.MethodPost, "/v1/audit/missing/corrections", devToken, `{"human_reviewer": "ops", "override_reason": "x"}`); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestPack(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := processOne(t, router)

	res := do(t, router, http.MethodGet, "/v1/pack/"+rec.DecisionID, devToken, "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content type %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(res.Body.Bytes()), int64(res.Body.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"audit.json", "templates.yaml", "policy.yaml", "manifest.json", "sha256sums.txt"} {
		if !names[want] {
			t.Fatalf("pack missing %s: %v", want, names)
		}
	}
}

type stubSigner struct{}

func (stubSigner) KeyID() string { return "unregistered" }

func (stubSigner) SignEd25519(_ []byte) ([]byte, error) { return make([]byte, 64), nil }
