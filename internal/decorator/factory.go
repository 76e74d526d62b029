package decorator

import "github.com/shaiso/Taskflow/internal/task"

// FactoryFunc создаёт внутреннюю задачу из аргументов.
type FactoryFunc func(args ...any) (task.Task, error)

// Factory создаёт внутреннюю задачу при первом запуске и доводит её
// до завершения.
//
// По умолчанию после ошибки повторный запуск перезапускает тот же
// экземпляр. С RecreateAfterError следующий запуск после ошибки
// создаёт новый.
type Factory struct {
	*task.Base

	in       link
	fn       FactoryFunc
	args     []any
	recreate bool
	rebuild  bool
	failed   bool
	built    int
}

// NewFactory создаёт Factory, вызывающую fn(args...).
func NewFactory(fn FactoryFunc, args ...any) *Factory {
	f := &Factory{
		fn:   fn,
		args: args,
	}
	f.Base = task.NewBase(f, "factory", task.Handlers{
		Run:       f.run,
		Interrupt: f.in.interrupt,
		Reset:     f.reset,
		Progress:  f.in.progress,
	})
	return f
}

// NewDeferredFactory создаёт Factory из функции без аргументов.
func NewDeferredFactory(fn func() (task.Task, error)) *Factory {
	var ff FactoryFunc
	if fn != nil {
		ff = func(...any) (task.Task, error) { return fn() }
	}
	return NewFactory(ff)
}

// RecreateAfterError включает пересоздание задачи после ошибки.
// Флаг не сбрасывается.
func (f *Factory) RecreateAfterError() *Factory {
	f.recreate = true
	return f
}

// RecreateOnReset включает пересоздание задачи после Reset: следующий
// запуск снова вызывает фабрику.
func (f *Factory) RecreateOnReset() *Factory {
	f.rebuild = true
	return f
}

// Inner возвращает текущую внутреннюю задачу (nil до первого запуска).
func (f *Factory) Inner() task.Task {
	return f.in.inner
}

// Built возвращает, сколько раз вызывалась фабрика.
func (f *Factory) Built() int {
	return f.built
}

func (f *Factory) run() {
	if f.in.inner != nil && f.failed && f.recreate {
		f.in.detach(f)
		f.in.inner = nil
	}

	if f.in.inner == nil {
		f.build()
		return
	}

	switch f.in.inner.State() {
	case task.StateCompleted:
		f.Complete(f.in.inner.Data())
	case task.StateErrored:
		f.in.restart()
	default:
		f.in.start()
	}
}

func (f *Factory) build() {
	if f.fn == nil {
		f.FailWith(nil, missingTask(f.Name()))
		return
	}

	inner, err := f.fn(f.args...)
	f.built++
	if err != nil {
		f.FailWith(nil, err)
		return
	}
	if inner == nil {
		f.FailWith(nil, missingTask(f.Name()))
		return
	}

	f.in.inner = inner
	f.failed = false

	// Фабрика могла вернуть уже завершённую задачу: смотрим состояние
	// до подписки, иначе исход будет потерян.
	state := inner.State()
	f.in.attach(f, f.onInnerFinal)

	switch state {
	case task.StateCompleted, task.StateErrored:
		f.onInnerFinal()
	default:
		f.in.start()
	}
}

func (f *Factory) onInnerFinal() {
	inner := f.in.inner
	if inner.State() == task.StateCompleted {
		f.failed = false
		f.Complete(inner.Data())
		return
	}
	f.failed = true
	f.FailWith(inner.Data(), inner.Err())
}

func (f *Factory) reset() {
	f.in.reset()
	if f.rebuild && f.in.inner != nil {
		f.in.detach(f)
		f.in.inner = nil
		f.failed = false
	}
}
