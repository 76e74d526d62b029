package api

import (
	"net/http"
	"time"
)

// GetFlow возвращает состояние flow.
// GET /api/v1/flow
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	status, err := h.flow.Status(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, status)
}

// TriggerFlow запускает flow вне расписания.
// POST /api/v1/flow/run
func (h *Handler) TriggerFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Trigger(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// InterruptFlow прерывает текущий запуск.
// POST /api/v1/flow/interrupt
func (h *Handler) InterruptFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Interrupt(r.Context()); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "interrupted"})
}

// Health возвращает статус процесса.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}
