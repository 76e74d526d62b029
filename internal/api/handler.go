package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Taskflow/internal/repo"
)

// Ошибки Controller.
var (
	// ErrAlreadyRunning — flow уже выполняется.
	ErrAlreadyRunning = errors.New("flow is already running")

	// ErrNotRunning — flow не выполняется.
	ErrNotRunning = errors.New("flow is not running")
)

// Controller управляет flow, загруженным в процесс.
//
// Методы вызываются из горутин HTTP сервера; реализация сама
// переносит вызов в горутину цикла задач.
type Controller interface {
	// Status возвращает снимок состояния flow.
	Status(ctx context.Context) (FlowStatus, error)

	// Trigger запускает flow вне расписания.
	Trigger(ctx context.Context) error

	// Interrupt прерывает текущий запуск.
	Interrupt(ctx context.Context) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store   repo.Store
	flow    Controller
	logger  *slog.Logger
	started time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Store — хранилище запусков; nil отключает /runs.
	Store repo.Store

	// Flow — управление flow; nil отключает /flow.
	Flow Controller

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   cfg.Store,
		flow:    cfg.Flow,
		logger:  logger,
		started: time.Now(),
	}
}
