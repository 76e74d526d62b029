package decorator

import (
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/task"
)

// Timeout ограничивает время выполнения внутренней задачи.
//
// Если таймер срабатывает раньше, внутренняя задача прерывается,
// а Timeout завершается с *task.TimeoutError. При внешнем прерывании
// остаток времени сохраняется и используется при продолжении
// (если не задан RestartOnResume).
type Timeout struct {
	*task.Base

	in    link
	limit time.Duration
	opts  options

	remaining time.Duration
	startedAt time.Time
	timer     clock.Timer
}

// NewTimeout создаёт Timeout.
func NewTimeout(inner task.Task, limit time.Duration, opts ...Option) *Timeout {
	o := applyOptions("timeout", inner, opts)

	t := &Timeout{
		in:        link{inner: inner},
		limit:     limit,
		opts:      o,
		remaining: limit,
	}
	t.Base = task.NewBase(t, o.name, task.Handlers{
		Run:       t.run,
		Interrupt: t.interrupt,
		Reset:     t.reset,
		Progress:  t.in.progress,
	})
	if inner != nil {
		t.in.attach(t, t.onInnerFinal)
	}
	return t
}

// Limit возвращает полный бюджет времени.
func (t *Timeout) Limit() time.Duration {
	return t.limit
}

// Remaining возвращает остаток времени на момент последней паузы.
func (t *Timeout) Remaining() time.Duration {
	return t.remaining
}

// Inner возвращает внутреннюю задачу.
func (t *Timeout) Inner() task.Task {
	return t.in.inner
}

func (t *Timeout) run() {
	if t.in.inner == nil {
		t.FailWith(nil, missingTask(t.Name()))
		return
	}
	if t.opts.clock == nil {
		t.FailWith(nil, missingClock(t.Name()))
		return
	}

	if t.opts.restart {
		t.remaining = t.limit
	}
	t.startedAt = t.opts.clock.Now()
	t.timer = t.opts.clock.AfterFunc(t.remaining, t.onTimer)

	if !t.in.start() {
		t.onInnerFinal()
	}
}

func (t *Timeout) onTimer() {
	t.timer = nil
	if t.State() != task.StateRunning {
		return
	}

	t.remaining = 0
	t.in.interrupt()

	data := t.in.inner.Data()
	t.Logger().Debug("task timed out",
		"task_id", t.ID(),
		"task", t.Name(),
		"after", t.limit,
	)
	t.FailWith(data, &task.TimeoutError{After: t.limit, Data: data})
}

func (t *Timeout) onInnerFinal() {
	t.stopTimer()

	inner := t.in.inner
	if inner.State() == task.StateCompleted {
		t.Complete(inner.Data())
		return
	}
	t.FailWith(inner.Data(), inner.Err())
}

func (t *Timeout) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Timeout) interrupt() {
	if t.timer != nil {
		t.remaining -= clock.Since(t.opts.clock, t.startedAt)
		if t.remaining < 0 {
			t.remaining = 0
		}
	}
	t.stopTimer()
	t.in.interrupt()
}

func (t *Timeout) reset() {
	t.stopTimer()
	t.remaining = t.limit
	t.in.reset()
}
