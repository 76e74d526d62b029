package task

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки контракта задачи.
var (
	// ErrInvalidTransition — операция недопустима в текущем состоянии.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoResolution — ни один кандидат не прошёл проверку блокирующих задач.
	ErrNoResolution = errors.New("no valid resolution")

	// ErrMissingTask — декоратору не передана (или фабрика не вернула) внутренняя задача.
	ErrMissingTask = errors.New("inner task is missing")
)

// TransitionError — попытка перехода, которого нет в машине состояний.
type TransitionError struct {
	TaskID string
	Name   string
	From   State
	Op     string
}

// Error реализует интерфейс error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s task %q in state %s", e.Op, e.Name, e.From)
}

// Unwrap возвращает ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ExecutionError — листовая операция завершилась неудачей.
type ExecutionError struct {
	Message string
	Data    any
}

// Error реализует интерфейс error.
func (e *ExecutionError) Error() string {
	if e.Message == "" {
		return "task execution failed"
	}
	return e.Message
}

// TimeoutError — внутренняя задача не успела завершиться до дедлайна
// и была принудительно прервана.
type TimeoutError struct {
	After time.Duration
	Data  any
}

// Error реализует интерфейс error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task timed out after %s", e.After)
}

// StructuralError — композиция собрана некорректно: нет подходящего кандидата
// у Resolver или у декоратора нет внутренней задачи.
type StructuralError struct {
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *StructuralError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *StructuralError) Unwrap() error {
	return e.Err
}

// NewStructuralError создаёт StructuralError.
func NewStructuralError(message string, err error) *StructuralError {
	return &StructuralError{Message: message, Err: err}
}
