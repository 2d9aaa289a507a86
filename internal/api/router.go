package api

import "net/http"

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /v1/applications", h.ProcessApplication)
	mux.HandleFunc("POST /v1/applications/batch", h.ProcessBatch)
	mux.HandleFunc("GET /v1/audit/{id}", h.Audit)
	mux.HandleFunc("POST /v1/audit/{id}/corrections", h.Correct)
	mux.HandleFunc("GET /v1/verify/{id}", h.Verify)
	mux.HandleFunc("GET /v1/pack/{id}", h.Pack)
	return mux
}
