package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Taskflow/internal/task"
)

// Источники запуска.
const (
	SourceManual   = "manual"
	SourceSchedule = "schedule"
	SourceWatch    = "watch"
)

// RunRecord — результат одного запуска корневой задачи flow.
type RunRecord struct {
	// ID — уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// Flow — имя flow.
	Flow string `json:"flow"`

	// Source — кто запустил: manual, schedule, watch.
	Source string `json:"source"`

	// State — состояние корневой задачи (RUNNING до завершения).
	State string `json:"state"`

	// Error — сообщение об ошибке, если запуск завершился ERRORED.
	Error string `json:"error,omitempty"`

	// Data — результат корневой задачи в JSON.
	Data json.RawMessage `json:"data,omitempty"`

	// Operations и Completed — прогресс корневой задачи.
	Operations int `json:"operations"`
	Completed  int `json:"completed"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRecord создаёт запись о начавшемся запуске.
func NewRecord(flow, source string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:        uuid.New(),
		Flow:      flow,
		Source:    source,
		State:     task.StateRunning.String(),
		StartedAt: startedAt.UTC(),
	}
}

// Finish фиксирует итог корневой задачи.
func (r *RunRecord) Finish(t task.Task, at time.Time) error {
	r.State = t.State().String()
	r.Error = t.ErrorMessage()
	r.Operations = t.OperationsCount()
	r.Completed = t.CompletedOperationsCount()

	finished := at.UTC()
	r.FinishedAt = &finished

	r.Data = nil
	if data := t.Data(); data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal run data: %w", err)
		}
		r.Data = raw
	}
	return nil
}

// Duration возвращает продолжительность запуска.
// Возвращает 0, если запуск ещё не завершён.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если запуск завершён.
func (r *RunRecord) IsFinished() bool {
	return r.FinishedAt != nil
}

func (r *RunRecord) validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if r.Flow == "" {
		return fmt.Errorf("%w: empty flow name", ErrInvalidRecord)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("%w: empty started_at", ErrInvalidRecord)
	}
	return nil
}

// ListFilter — параметры выборки запусков.
type ListFilter struct {
	// Flow — только запуски указанного flow (пусто — все).
	Flow string

	// Limit — максимум записей (<= 0 — DefaultListLimit).
	Limit int
}

// DefaultListLimit — размер выборки по умолчанию.
const DefaultListLimit = 50

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store хранит записи о запусках.
type Store interface {
	// Save создаёт или обновляет запись.
	Save(ctx context.Context, rec *RunRecord) error

	// Get возвращает запись по ID или ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*RunRecord, error)

	// List возвращает записи, начиная с последних.
	List(ctx context.Context, filter ListFilter) ([]RunRecord, error)

	// Close освобождает соединения.
	Close() error
}
