package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/davidahmann/licensetriage/internal/auth"
	"github.com/davidahmann/licensetriage/internal/ledger"
	"github.com/davidahmann/licensetriage/internal/orchestrator"
	"github.com/davidahmann/licensetriage/internal/pack"
	"github.com/davidahmann/licensetriage/pkg/types"
)

const maxBodyBytes = 8 << 20

type Processor interface {
	Process(ctx context.Context, record types.ApplicationRecord) (types.AuditRecord, error)
	ProcessBatch(ctx context.Context, records []types.ApplicationRecord, opts orchestrator.BatchOptions) []orchestrator.BatchResult
}

type Corrector interface {
	Correct(ctx context.Context, decisionID string, c ledger.Correction) (types.AuditRecord, error)
}

type Handler struct {
	Auth      auth.Authenticator
	Processor Processor
	Corrector Corrector
	Store     ledger.Store
	Batch     orchestrator.BatchOptions
	Logger    *zap.Logger
}

type BatchRequest struct {
	Applications []types.ApplicationRecord `json:"applications"`
}

type BatchItem struct {
	ApplicationID string             `json:"application_id"`
	Record        *types.AuditRecord `json:"record,omitempty"`
	Error         string             `json:"error,omitempty"`
	Stage         string             `json:"stage,omitempty"`
}

type BatchResponse struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Results   []BatchItem `json:"results"`
}

type AuditResponse struct {
	Record      types.AuditRecord `json:"record"`
	BodyDigest  string            `json:"body_digest"`
	KeyID       string            `json:"key_id"`
	Corrections []string          `json:"corrections"`
}

type VerifyResponse struct {
	DecisionID string `json:"decision_id"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ProcessApplication(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ensureAuth(w, r); !ok {
		return
	}
	if h.Processor == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "processor not configured"})
		return
	}

	var app types.ApplicationRecord
	if !decodeBody(w, r, &app) {
		return
	}
	if app.ApplicationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing application_id"})
		return
	}

	rec, err := h.Processor.Process(r.Context(), app)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ensureAuth(w, r); !ok {
		return
	}
	if h.Processor == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "processor not configured"})
		return
	}

	var req BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Applications) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no applications"})
		return
	}
	for i, app := range req.Applications {
		if app.ApplicationID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("applications[%d]: missing application_id", i)})
			return
		}
	}

	results := h.Processor.ProcessBatch(r.Context(), req.Applications, h.Batch)
	resp := BatchResponse{Results: make([]BatchItem, 0, len(results))}
	for _, res := range results {
		item := BatchItem{ApplicationID: res.ApplicationID, Record: res.Record}
		if res.Err != nil {
			resp.Failed++
			item.Error = res.Err.Error()
			var failure *orchestrator.Failure
			if errors.As(res.Err, &failure) {
				item.Stage = failure.Stage
			}
		} else {
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ensureAuth(w, r); !ok {
		return
	}
	decisionID := r.PathValue("id")

	entry, ok := h.Store.GetAuditEntry(decisionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit record not found"})
		return
	}
	rec, err := ledger.DecodeAuditRecord(entry)
	if err != nil {
		h.writeError(w, err)
		return
	}
	corrections, err := h.Store.ListCorrections(decisionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := AuditResponse{Record: rec, BodyDigest: entry.BodyDigest, KeyID: entry.KeyID, Corrections: []string{}}
	for _, c := range corrections {
		resp.Corrections = append(resp.Corrections, c.DecisionID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ensureAuth(w, r); !ok {
		return
	}
	decisionID := r.PathValue("id")

	_, _, err := ledger.VerifyStored(h.Store, decisionID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit record not found"})
	case err != nil:
		writeJSON(w, http.StatusOK, VerifyResponse{DecisionID: decisionID, Valid: false, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, VerifyResponse{DecisionID: decisionID, Valid: true})
	}
}

func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.ensureAuth(w, r)
	if !ok {
		return
	}
	if !claims.Reviewer() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "reviewer role required"})
		return
	}
	if h.Corrector == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "corrections not configured"})
		return
	}

	var c ledger.Correction
	if !decodeBody(w, r, &c) {
		return
	}
	// Reviewer tokens sign corrections as themselves.
	if claims.Role == auth.RoleReviewer {
		c.Reviewer = claims.Subject
	}

	rec, err := h.Corrector.Correct(r.Context(), r.PathValue("id"), c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Pack(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ensureAuth(w, r); !ok {
		return
	}
	decisionID := r.PathValue("id")

	entry, _, err := ledger.VerifyStored(h.Store, decisionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	cfg, ok := h.Store.GetConfigVersion(entry.ConfigDigest)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "config version not found"})
		return
	}
	key, _ := h.Store.GetKey(entry.KeyID)
	corrections, err := h.Store.ListCorrections(decisionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	baseURL := ""
	if r.Host != "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}

	zipBytes, err := pack.BuildZip(pack.Input{
		Entry:       entry,
		Corrections: corrections,
		Templates:   []byte(cfg.TemplatesYAML),
		Policy:      []byte(cfg.PolicyYAML),
		Settings:    []byte(cfg.SettingsJSON),
		PublicKey:   key.PublicKey,
		CreatedAt:   entry.CreatedAt,
	}, baseURL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=triage-pack-"+decisionID+".zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipBytes)
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, err := h.Auth.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return auth.Claims{}, false
	}
	return claims, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
