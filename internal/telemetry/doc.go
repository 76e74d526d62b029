// Package telemetry обеспечивает наблюдаемость задач.
//
// Включает:
//   - logging.go — structured logging через slog
//   - events.go  — запись событий жизненного цикла задачи в лог
//   - metrics.go — Prometheus метрики (события, RUNNING, длительность)
//
// Команды CLI используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
