// Package decorator содержит задачи-обёртки, добавляющие поведение
// к одной внутренней задаче.
//
// Включает:
//   - retry.go    — повтор при ошибке (синхронно или через таймер)
//   - timeout.go  — ограничение времени с сохранением остатка при паузе
//   - failsafe.go — любой исход внутренней задачи превращается в успех
//   - factory.go  — ленивое создание внутренней задачи через фабрику
//   - link.go     — общая подписка на внутреннюю задачу
//
// Декоратор единолично управляет внутренней задачей, пока сам активен.
// Если внутреннюю задачу прервал кто-то другой, декоратор прерывается сам.
package decorator
