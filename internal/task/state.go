package task

// State — состояние задачи.
//
// Жизненный цикл:
//
//	INITIALIZED → RUNNING → COMPLETED
//	                      ↘ ERRORED
//	                      ↘ INTERRUPTED
type State string

const (
	// StateInitialized — задача создана (или сброшена) и ещё не запускалась.
	StateInitialized State = "INITIALIZED"

	// StateRunning — задача выполняется.
	StateRunning State = "RUNNING"

	// StateCompleted — задача успешно завершена.
	StateCompleted State = "COMPLETED"

	// StateErrored — задача завершилась с ошибкой.
	StateErrored State = "ERRORED"

	// StateInterrupted — задача приостановлена, может быть продолжена через Run.
	StateInterrupted State = "INTERRUPTED"
)

// String возвращает строковое представление State.
func (s State) String() string {
	return string(s)
}

// IsTerminal возвращает true, если состояние финальное (COMPLETED или ERRORED).
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateErrored:
		return true
	default:
		return false
	}
}

// CanRun проверяет, можно ли запустить (или продолжить) задачу из этого состояния.
func (s State) CanRun() bool {
	return s == StateInitialized || s == StateInterrupted
}

// isAllowedTransition проверяет переход по рёбрам машины состояний.
func isAllowedTransition(from, to State) bool {
	switch from {
	case StateInitialized:
		return to == StateRunning
	case StateRunning:
		return to == StateCompleted || to == StateErrored || to == StateInterrupted
	case StateInterrupted:
		return to == StateRunning || to == StateInitialized
	case StateCompleted, StateErrored:
		return to == StateInitialized
	default:
		return false
	}
}

// ParseState парсит строку в State.
// Неизвестные значения трактуются как INITIALIZED.
func ParseState(s string) State {
	switch s {
	case "RUNNING":
		return StateRunning
	case "COMPLETED":
		return StateCompleted
	case "ERRORED":
		return StateErrored
	case "INTERRUPTED":
		return StateInterrupted
	default:
		return StateInitialized
	}
}
