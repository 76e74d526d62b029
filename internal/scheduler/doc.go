// Package scheduler запускает flow по cron-расписанию.
//
// Структура:
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//   - scheduler.go — Cron: таймер на clock.Clock, reset + run корневой задачи
//
// Использование:
//
//	sched, err := scheduler.ParseSchedule("*/5 * * * *", "Europe/Moscow")
//	cr := scheduler.New(flow.Root, sched, loop, scheduler.WithLogger(logger))
//	loop.Post(func() { _ = cr.Start() })
//
// Пересечения запусков не бывает: срабатывание во время RUNNING
// пропускается и учитывается в Skipped.
package scheduler
