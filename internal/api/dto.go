package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Taskflow/internal/repo"
)

// RunResponse — ответ с записью о запуске.
type RunResponse struct {
	ID         uuid.UUID       `json:"id"`
	Flow       string          `json:"flow"`
	Source     string          `json:"source"`
	State      string          `json:"state"`
	Error      string          `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Operations int             `json:"operations"`
	Completed  int             `json:"completed"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// RunFromRecord конвертирует repo.RunRecord в RunResponse.
func RunFromRecord(r repo.RunRecord) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Flow:       r.Flow,
		Source:     r.Source,
		State:      r.State,
		Error:      r.Error,
		Data:       r.Data,
		Operations: r.Operations,
		Completed:  r.Completed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// FlowStatus — снимок состояния flow.
type FlowStatus struct {
	Flow       string       `json:"flow"`
	State      string       `json:"state"`
	Error      string       `json:"error,omitempty"`
	Operations int          `json:"operations"`
	Completed  int          `json:"completed"`
	Schedule   string       `json:"schedule,omitempty"`
	NextRun    *time.Time   `json:"next_run,omitempty"`
	Runs       int          `json:"runs"`
	Skipped    int          `json:"skipped"`
	Steps      []StepStatus `json:"steps"`
}

// StepStatus — состояние шага.
type StepStatus struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}
