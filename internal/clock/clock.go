// Package clock — таймеры и цикл событий, в котором живут задачи.
//
// Все задачи выполняются в одной горутине. Loop даёт эту горутину в
// рабочем режиме, Fake — детерминированное время для тестов.
//
// Структура:
//   - clock.go — интерфейсы Clock и Timer
//   - loop.go  — однопоточный цикл событий с таймерами на реальном времени
//   - fake.go  — ручное время: Advance синхронно вызывает наступившие таймеры
package clock

import "time"

// Timer — отложенный вызов, который можно отменить.
type Timer interface {
	// Stop отменяет вызов. Возвращает false, если вызов уже произошёл
	// или был отменён раньше.
	Stop() bool
}

// Clock — источник времени и таймеров для задач.
//
// Колбэк AfterFunc всегда вызывается в горутине, которая обслуживает задачи.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Since возвращает время, прошедшее с t по часам c.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
