package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API.
// Маршруты /runs и /flow регистрируются, только если задан Store и Flow.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		AccessLog(),
	)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Health))

	// Runs
	if h.store != nil {
		mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
		mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	}

	// Flow
	if h.flow != nil {
		mux.Handle("GET /api/v1/flow", chain(http.HandlerFunc(h.GetFlow)))
		mux.Handle("POST /api/v1/flow/run", chain(http.HandlerFunc(h.TriggerFlow)))
		mux.Handle("POST /api/v1/flow/interrupt", chain(http.HandlerFunc(h.InterruptFlow)))
	}
}
