package decorator

import "github.com/shaiso/Taskflow/internal/task"

// Failsafe всегда завершается успешно: при успехе внутренней задачи
// с её данными, при ошибке — с nil.
type Failsafe struct {
	*task.Base
	in link
}

// NewFailsafe создаёт Failsafe.
func NewFailsafe(inner task.Task, opts ...Option) *Failsafe {
	o := applyOptions("failsafe", inner, opts)

	f := &Failsafe{in: link{inner: inner}}
	f.Base = task.NewBase(f, o.name, task.Handlers{
		Run:       f.run,
		Interrupt: f.in.interrupt,
		Reset:     f.in.reset,
		Progress:  f.in.progress,
	})
	if inner != nil {
		f.in.attach(f, f.onInnerFinal)
	}
	return f
}

// Inner возвращает внутреннюю задачу.
func (f *Failsafe) Inner() task.Task {
	return f.in.inner
}

func (f *Failsafe) run() {
	if f.in.inner == nil {
		f.FailWith(nil, missingTask(f.Name()))
		return
	}
	if !f.in.start() {
		f.onInnerFinal()
	}
}

func (f *Failsafe) onInnerFinal() {
	inner := f.in.inner
	if inner.State() == task.StateCompleted {
		f.Complete(inner.Data())
		return
	}

	f.Logger().Debug("inner task error suppressed",
		"task_id", f.ID(),
		"task", f.Name(),
		"error", inner.ErrorMessage(),
	)
	f.Complete(nil)
}
