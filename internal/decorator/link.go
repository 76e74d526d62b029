package decorator

import (
	"errors"
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/task"
)

// ErrNoClock — декоратору с таймером не передан clock.Clock.
var ErrNoClock = errors.New("clock is required")

// Option — опция декоратора.
type Option func(*options)

type options struct {
	name     string
	clock    clock.Clock
	backoff  bool
	maxDelay time.Duration
	restart  bool
}

// WithName задаёт имя декоратора.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock задаёт часы для таймеров Retry и Timeout.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithExponentialBackoff удваивает задержку Retry после каждой попытки,
// но не больше maxDelay.
func WithExponentialBackoff(maxDelay time.Duration) Option {
	return func(o *options) {
		o.backoff = true
		o.maxDelay = maxDelay
	}
}

// RestartOnResume — Timeout после прерывания начинает отсчёт заново
// вместо продолжения с остатка.
func RestartOnResume() Option {
	return func(o *options) { o.restart = true }
}

func applyOptions(defaultName string, inner task.Task, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = defaultName
		if inner != nil {
			o.name = defaultName + "(" + inner.Name() + ")"
		}
	}
	return o
}

// link — подписка декоратора на внутреннюю задачу.
type link struct {
	inner        task.Task
	interrupting bool
}

// attach подписывает owner на FINAL и INTERRUPTED внутренней задачи.
func (l *link) attach(owner task.Task, onFinal func()) {
	l.inner.On(task.EventFinal, func(task.Task) {
		if owner.State() == task.StateRunning {
			onFinal()
		}
	}, owner)
	l.inner.On(task.EventInterrupted, func(task.Task) {
		if owner.State() == task.StateRunning && !l.interrupting {
			_ = owner.Interrupt()
		}
	}, owner)
}

func (l *link) detach(owner task.Task) {
	if l.inner != nil {
		l.inner.OffScope(owner)
	}
}

// start запускает или продолжает внутреннюю задачу.
// Возвращает false, если задача уже в финальном состоянии.
func (l *link) start() bool {
	switch l.inner.State() {
	case task.StateCompleted, task.StateErrored:
		return false
	case task.StateRunning:
		return true
	}
	_ = l.inner.Run()
	return true
}

func (l *link) restart() {
	_ = l.inner.Reset()
	_ = l.inner.Run()
}

func (l *link) interrupt() {
	if l.inner == nil || l.inner.State() != task.StateRunning {
		return
	}
	l.interrupting = true
	_ = l.inner.Interrupt()
	l.interrupting = false
}

func (l *link) reset() {
	if l.inner == nil {
		return
	}
	l.interrupt()
	_ = l.inner.Reset()
}

func (l *link) progress() (int, int) {
	if l.inner == nil {
		return 0, 1
	}
	return l.inner.CompletedOperationsCount(), l.inner.OperationsCount()
}

func missingTask(name string) error {
	return task.NewStructuralError(name, task.ErrMissingTask)
}

func missingClock(name string) error {
	return task.NewStructuralError(name, ErrNoClock)
}
