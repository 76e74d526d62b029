package telemetry

import (
	"log/slog"

	"github.com/shaiso/Taskflow/internal/task"
)

// LogEvents пишет в лог события жизненного цикла задачи:
// запуск, завершение и прерывание на INFO, ошибку на WARN.
// Возвращает функцию отписки.
func LogEvents(logger *slog.Logger, t task.Task) func() {
	if logger == nil {
		logger = slog.Default()
	}
	scope := new(int)

	t.On(task.EventStarted, func(t task.Task) {
		logger.Info("task started", taskAttrs(t)...)
	}, scope)
	t.On(task.EventCompleted, func(t task.Task) {
		logger.Info("task completed", taskAttrs(t)...)
	}, scope)
	t.On(task.EventInterrupted, func(t task.Task) {
		logger.Info("task interrupted", taskAttrs(t)...)
	}, scope)
	t.On(task.EventErrored, func(t task.Task) {
		logger.Warn("task failed", append(taskAttrs(t), "error", t.ErrorMessage())...)
	}, scope)

	return func() { t.OffScope(scope) }
}
