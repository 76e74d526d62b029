package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shaiso/Taskflow/internal/task"
)

// LogConfig — настройки логгера. Пустые поля дают INFO, JSON и os.Stderr.
type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// ParseLevel переводит имя уровня (debug, info, warn, error, без учёта
// регистра) в slog.Level. Неизвестное имя даёт INFO.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger создаёт логгер по cfg. На уровне DEBUG в записи добавляется
// место вызова.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// SetupLogger создаёт логгер и делает его логгером по умолчанию.
func SetupLogger(cfg LogConfig) *slog.Logger {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста, иначе slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RunLogger — логгер одного запуска потока: все записи несут flow и run_id.
func RunLogger(logger *slog.Logger, flow, runID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("flow", flow, "run_id", runID)
}

// taskAttrs — атрибуты задачи для записей о её событиях.
func taskAttrs(t task.Task) []any {
	return []any{
		"task_id", t.ID(),
		"task", t.Name(),
		"progress", t.CompletedOperationsCount(),
		"operations", t.OperationsCount(),
	}
}
