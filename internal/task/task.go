package task

import (
	"log/slog"

	"github.com/google/uuid"
)

// Task — контракт, который реализует каждая задача: листья, декораторы,
// композиции и графы.
type Task interface {
	// Run запускает задачу или продолжает её после прерывания.
	// Повторный вызов в RUNNING ничего не делает.
	Run() error

	// Interrupt приостанавливает задачу. Допустим только в RUNNING.
	Interrupt() error

	// Reset возвращает задачу в INITIALIZED, очищая результат и ошибку.
	Reset() error

	// On подписывает обработчик на событие. scope — ключ владельца для OffScope.
	On(ev Event, fn Listener, scope any) ListenerID

	// Off снимает подписку.
	Off(ev Event, id ListenerID)

	// OffScope снимает все подписки владельца.
	OffScope(scope any)

	State() State
	Data() any
	Err() error
	ErrorMessage() string
	Name() string
	ID() string

	// OperationsCount — общее число операций (лист = 1).
	OperationsCount() int

	// CompletedOperationsCount — число завершённых операций.
	CompletedOperationsCount() int
}

// Handlers — поведение конкретной задачи, которое вызывает Base.
//
// Run начинает (или продолжает) работу и рано или поздно должен привести
// к вызову Complete или Fail. Interrupt останавливает текущую операцию,
// сохраняя состояние для продолжения. Reset возвращает внутреннее состояние
// к только что созданному. Progress возвращает (completed, total); если не
// задан, задача считается одной операцией.
type Handlers struct {
	Run       func()
	Interrupt func()
	Reset     func()
	Progress  func() (completed, total int)
}

// Base — встраиваемая машина состояний задачи.
//
// Конкретный тип встраивает *Base и передаёт в NewBase себя (self), чтобы
// обработчики событий получали внешний тип, а не Base.
type Base struct {
	self     Task
	id       string
	name     string
	state    State
	data     any
	err      error
	handlers Handlers
	emitter  Emitter
	logger   *slog.Logger
}

// NewBase создаёт машину состояний для задачи self.
func NewBase(self Task, name string, h Handlers) *Base {
	if name == "" {
		name = "task"
	}
	return &Base{
		self:     self,
		id:       uuid.NewString(),
		name:     name,
		state:    StateInitialized,
		handlers: h,
	}
}

// Run запускает задачу.
func (b *Base) Run() error {
	switch b.state {
	case StateRunning:
		return nil
	case StateCompleted, StateErrored:
		return b.transitionError("run")
	}

	b.setState(StateRunning)
	b.emitter.Emit(EventStarted, b.source())

	// Подписчик STARTED мог уже прервать или завершить задачу.
	if b.state != StateRunning {
		return nil
	}
	if b.handlers.Run != nil {
		b.handlers.Run()
	}
	return nil
}

// Interrupt приостанавливает выполняющуюся задачу.
func (b *Base) Interrupt() error {
	if b.state != StateRunning {
		return b.transitionError("interrupt")
	}

	b.setState(StateInterrupted)
	if b.handlers.Interrupt != nil {
		b.handlers.Interrupt()
	}
	b.emitter.Emit(EventInterrupted, b.source())
	return nil
}

// Reset возвращает задачу в INITIALIZED.
func (b *Base) Reset() error {
	switch b.state {
	case StateInitialized:
		return nil
	case StateRunning:
		return b.transitionError("reset")
	}

	b.setState(StateInitialized)
	b.data = nil
	b.err = nil
	if b.handlers.Reset != nil {
		b.handlers.Reset()
	}
	return nil
}

// Complete переводит задачу в COMPLETED с результатом data.
// Вне RUNNING вызов игнорируется.
func (b *Base) Complete(data any) {
	if b.state != StateRunning {
		b.Logger().Warn("complete ignored: task is not running",
			"task_id", b.id,
			"task", b.name,
			"state", b.state,
		)
		return
	}

	b.data = data
	b.setState(StateCompleted)
	b.emitter.Emit(EventCompleted, b.source())
	b.emitter.Emit(EventFinal, b.source())
}

// Fail переводит задачу в ERRORED с ExecutionError.
func (b *Base) Fail(data any, message string) {
	b.FailWith(data, &ExecutionError{Message: message, Data: data})
}

// FailWith переводит задачу в ERRORED с заданной ошибкой.
// Ошибку дочерней задачи агрегаты передают сюда без изменений.
func (b *Base) FailWith(data any, err error) {
	if b.state != StateRunning {
		b.Logger().Warn("fail ignored: task is not running",
			"task_id", b.id,
			"task", b.name,
			"state", b.state,
		)
		return
	}
	if err == nil {
		err = &ExecutionError{Data: data}
	}

	b.data = data
	b.err = err
	b.setState(StateErrored)
	b.emitter.Emit(EventErrored, b.source())
	b.emitter.Emit(EventFinal, b.source())
}

// On подписывает обработчик на событие.
func (b *Base) On(ev Event, fn Listener, scope any) ListenerID {
	return b.emitter.On(ev, fn, scope)
}

// Off снимает подписку.
func (b *Base) Off(ev Event, id ListenerID) {
	b.emitter.Off(ev, id)
}

// OffScope снимает все подписки владельца scope.
func (b *Base) OffScope(scope any) {
	b.emitter.OffScope(scope)
}

// ListenerCount возвращает число подписчиков на событие.
func (b *Base) ListenerCount(ev Event) int {
	return b.emitter.Count(ev)
}

func (b *Base) State() State { return b.state }
func (b *Base) Data() any    { return b.data }
func (b *Base) Err() error   { return b.err }
func (b *Base) Name() string { return b.name }
func (b *Base) ID() string   { return b.id }

// ErrorMessage возвращает текст ошибки или пустую строку.
func (b *Base) ErrorMessage() string {
	if b.err == nil {
		return ""
	}
	return b.err.Error()
}

// SetName меняет человекочитаемое имя задачи.
func (b *Base) SetName(name string) {
	b.name = name
}

// SetLogger задаёт логгер задачи. По умолчанию используется slog.Default().
func (b *Base) SetLogger(l *slog.Logger) {
	b.logger = l
}

// Logger возвращает логгер задачи.
func (b *Base) Logger() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// OperationsCount возвращает общее число операций.
func (b *Base) OperationsCount() int {
	if b.handlers.Progress != nil {
		_, total := b.handlers.Progress()
		return total
	}
	return 1
}

// CompletedOperationsCount возвращает число завершённых операций.
func (b *Base) CompletedOperationsCount() int {
	if b.handlers.Progress != nil {
		completed, _ := b.handlers.Progress()
		return completed
	}
	if b.state == StateCompleted {
		return 1
	}
	return 0
}

func (b *Base) source() Task {
	if b.self != nil {
		return b.self
	}
	return b
}

func (b *Base) setState(to State) {
	from := b.state
	if !isAllowedTransition(from, to) {
		// Сюда попадаем только при ошибке в самом Base.
		panic("task: illegal transition " + from.String() + " -> " + to.String())
	}
	b.state = to

	b.Logger().Debug("task state changed",
		"task_id", b.id,
		"task", b.name,
		"from", from,
		"to", to,
	)
}

func (b *Base) transitionError(op string) error {
	return &TransitionError{
		TaskID: b.id,
		Name:   b.name,
		From:   b.state,
		Op:     op,
	}
}
