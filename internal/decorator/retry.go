package decorator

import (
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/task"
)

// Retry перезапускает внутреннюю задачу при ошибке, не более maxRetries раз.
//
// delay < 0 — повтор синхронно, в том же обработчике ошибки.
// delay >= 0 — повтор через таймер (нужен WithClock).
//
// Счётчик повторов обнуляется при прерывании Retry. После исчерпания
// попыток Retry завершается с данными и ошибкой последней попытки.
type Retry struct {
	*task.Base

	in         link
	maxRetries int
	delay      time.Duration
	opts       options

	retries int
	timer   clock.Timer
}

// NewRetry создаёт Retry.
func NewRetry(inner task.Task, maxRetries int, delay time.Duration, opts ...Option) *Retry {
	o := applyOptions("retry", inner, opts)
	if maxRetries < 0 {
		maxRetries = 0
	}

	r := &Retry{
		in:         link{inner: inner},
		maxRetries: maxRetries,
		delay:      delay,
		opts:       o,
	}
	r.Base = task.NewBase(r, o.name, task.Handlers{
		Run:       r.run,
		Interrupt: r.interrupt,
		Reset:     r.reset,
		Progress:  r.in.progress,
	})
	if inner != nil {
		r.in.attach(r, r.onInnerFinal)
	}
	return r
}

// Retries возвращает число выполненных повторов.
func (r *Retry) Retries() int {
	return r.retries
}

// MaxRetries возвращает максимальное число повторов.
func (r *Retry) MaxRetries() int {
	return r.maxRetries
}

// Inner возвращает внутреннюю задачу.
func (r *Retry) Inner() task.Task {
	return r.in.inner
}

func (r *Retry) run() {
	if r.in.inner == nil {
		r.FailWith(nil, missingTask(r.Name()))
		return
	}
	if r.delay >= 0 && r.opts.clock == nil {
		r.FailWith(nil, missingClock(r.Name()))
		return
	}

	switch r.in.inner.State() {
	case task.StateCompleted:
		r.Complete(r.in.inner.Data())
	case task.StateErrored:
		// Прервали, пока ждали таймер повтора.
		r.in.restart()
	default:
		r.in.start()
	}
}

func (r *Retry) onInnerFinal() {
	inner := r.in.inner
	if inner.State() == task.StateCompleted {
		r.Complete(inner.Data())
		return
	}

	if r.retries >= r.maxRetries {
		r.FailWith(inner.Data(), inner.Err())
		return
	}

	r.retries++
	delay := r.nextDelay()
	r.Logger().Debug("retrying task",
		"task_id", r.ID(),
		"task", r.Name(),
		"attempt", r.retries,
		"delay", delay,
	)

	if r.delay < 0 {
		r.in.restart()
		return
	}
	r.timer = r.opts.clock.AfterFunc(delay, func() {
		r.timer = nil
		if r.State() != task.StateRunning {
			return
		}
		r.in.restart()
	})
}

// nextDelay вычисляет задержку перед текущим повтором.
func (r *Retry) nextDelay() time.Duration {
	if !r.opts.backoff || r.delay <= 0 {
		return r.delay
	}

	// delay = initial * 2^(retries-1)
	delay := r.delay
	for i := 1; i < r.retries; i++ {
		delay *= 2
		if r.opts.maxDelay > 0 && delay > r.opts.maxDelay {
			return r.opts.maxDelay
		}
	}
	return delay
}

func (r *Retry) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Retry) interrupt() {
	r.retries = 0
	r.stopTimer()
	r.in.interrupt()
}

func (r *Retry) reset() {
	r.retries = 0
	r.stopTimer()
	r.in.reset()
}
