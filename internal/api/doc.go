// Package api содержит HTTP API процесса taskflow schedule.
//
// Структура:
//   - handler.go      — Handler с зависимостями (Store, Controller, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — request id, recovery, access log
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — ответы API
//   - runs_handler.go — история запусков: /api/v1/runs
//   - flow_handler.go — состояние и управление flow: /api/v1/flow
package api
