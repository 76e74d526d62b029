// Package task содержит жизненный цикл задачи — общий контракт,
// на котором построены все остальные пакеты.
//
// Включает:
//   - state.go   — состояния задачи и допустимые переходы
//   - event.go   — события жизненного цикла и подписка на них
//   - task.go    — интерфейс Task и встраиваемая машина состояний Base
//   - errors.go  — таксономия ошибок (execution, timeout, structural)
//   - leaf.go    — простые листовые задачи Manual и Func
//
// Жизненный цикл:
//
//	INITIALIZED → RUNNING → COMPLETED
//	                      ↘ ERRORED
//	                      ↘ INTERRUPTED → RUNNING (resume)
//	COMPLETED / ERRORED / INTERRUPTED → INITIALIZED (только через Reset)
//
// Задачи не потокобезопасны: все вызовы Run/Interrupt/Reset и все
// обработчики событий выполняются в одной горутине (см. пакет clock).
package task
