package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Taskflow/internal/repo"
)

// ListRuns возвращает последние запуски.
// GET /api/v1/runs?flow=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.ListFilter{Flow: r.URL.Query().Get("flow")}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	runs, err := h.store.List(r.Context(), filter)
	if err != nil {
		fail(w, r, err)
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromRecord(run)
	}

	writeList(w, result, len(result))
}

// GetRun возвращает запуск по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		badRequest(w, "invalid run id")
		return
	}

	run, err := h.store.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, RunFromRecord(*run))
}
