// Package composite содержит агрегаты задач: Composite (параллельный
// или последовательный запуск своих детей), его вариант StopOnSuccess
// и Observer, который только наблюдает за чужими задачами.
package composite

import (
	"github.com/shaiso/Taskflow/internal/task"
)

// Policy — правило завершения Composite.
type Policy int

const (
	// PolicyFailFast — ошибка любого ребёнка прерывает остальных и
	// переводит Composite в ERRORED; успех — когда завершились все.
	PolicyFailFast Policy = iota

	// PolicyFirstSuccess — успех первого ребёнка завершает Composite
	// (остальные не трогаются); ошибка — только когда упали все.
	PolicyFirstSuccess
)

// String возвращает название правила.
func (p Policy) String() string {
	if p == PolicyFirstSuccess {
		return "first_success"
	}
	return "fail_fast"
}

// Composite владеет набором дочерних задач и запускает их параллельно
// или по очереди в порядке добавления.
type Composite struct {
	*task.Base

	parallel bool
	policy   Policy
	children []task.Task

	// stopping — Composite сам прерывает детей и не должен реагировать
	// на их INTERRUPTED.
	stopping bool
}

// New создаёт Composite с заданным правилом завершения.
func New(parallel bool, policy Policy, children ...task.Task) *Composite {
	name := "composite"
	if policy == PolicyFirstSuccess {
		name = "stop-on-success"
	}

	c := &Composite{
		parallel: parallel,
		policy:   policy,
	}
	c.Base = task.NewBase(c, name, task.Handlers{
		Run:       c.evaluate,
		Interrupt: c.interruptChildren,
		Reset:     c.reset,
		Progress:  c.progress,
	})
	c.Add(children...)
	return c
}

// NewComposite создаёт Composite с правилом fail-fast.
func NewComposite(parallel bool, children ...task.Task) *Composite {
	return New(parallel, PolicyFailFast, children...)
}

// NewStopOnSuccess создаёт Composite, который завершается успехом
// первого ребёнка.
func NewStopOnSuccess(parallel bool, children ...task.Task) *Composite {
	return New(parallel, PolicyFirstSuccess, children...)
}

// Parallel сообщает режим запуска.
func (c *Composite) Parallel() bool { return c.parallel }

// Policy возвращает правило завершения.
func (c *Composite) Policy() Policy { return c.policy }

// Children возвращает копию списка детей.
func (c *Composite) Children() []task.Task {
	out := make([]task.Task, len(c.children))
	copy(out, c.children)
	return out
}

// Len возвращает число детей.
func (c *Composite) Len() int { return len(c.children) }

// Completed возвращает детей в состоянии COMPLETED.
func (c *Composite) Completed() []task.Task {
	return c.filter(task.StateCompleted)
}

// Errored возвращает детей в состоянии ERRORED.
func (c *Composite) Errored() []task.Task {
	return c.filter(task.StateErrored)
}

// Add добавляет детей. В RUNNING параллельный Composite сразу их запускает,
// последовательный — ставит в очередь.
func (c *Composite) Add(children ...task.Task) {
	for _, child := range children {
		if child == nil || c.contains(child) {
			continue
		}
		c.children = append(c.children, child)
		c.watch(child)
	}

	if c.State() == task.StateRunning && len(children) > 0 {
		c.evaluate()
	}
}

// Remove удаляет детей. Выполняющийся удалённый ребёнок прерывается,
// после чего условие завершения проверяется заново.
func (c *Composite) Remove(children ...task.Task) {
	removed := false
	for _, child := range children {
		i := c.indexOf(child)
		if i < 0 {
			continue
		}
		child.OffScope(c)
		c.children = append(c.children[:i], c.children[i+1:]...)
		removed = true

		if child.State() == task.StateRunning {
			c.stopping = true
			_ = child.Interrupt()
			c.stopping = false
		}
	}

	if removed && c.State() == task.StateRunning {
		c.evaluate()
	}
}

func (c *Composite) watch(child task.Task) {
	child.On(task.EventFinal, func(task.Task) {
		if c.State() == task.StateRunning {
			c.evaluate()
		}
	}, c)
	child.On(task.EventInterrupted, func(task.Task) {
		if c.State() == task.StateRunning && !c.stopping {
			_ = c.Interrupt()
		}
	}, c)
}

// evaluate проверяет условие завершения и запускает следующих детей.
func (c *Composite) evaluate() {
	if c.State() != task.StateRunning {
		return
	}
	if c.finalize() {
		return
	}

	if c.parallel {
		for _, child := range c.Children() {
			if child.State().CanRun() {
				_ = child.Run()
			}
			if c.State() != task.StateRunning {
				return
			}
		}
		return
	}

	for _, child := range c.children {
		switch child.State() {
		case task.StateRunning:
			return
		case task.StateInitialized, task.StateInterrupted:
			_ = child.Run()
			return
		}
	}
}

// finalize завершает Composite, если правило это позволяет.
func (c *Composite) finalize() bool {
	switch c.policy {
	case PolicyFirstSuccess:
		if done := c.Completed(); len(done) > 0 {
			c.Complete(done[0].Data())
			return true
		}
		if errored := c.Errored(); len(errored) == len(c.children) {
			var last task.Task
			if len(errored) > 0 {
				last = errored[len(errored)-1]
			}
			c.fail(last)
			return true
		}

	default:
		if errored := c.Errored(); len(errored) > 0 {
			c.stopping = true
			c.stopRunning()
			c.stopping = false
			c.fail(errored[0])
			return true
		}
		if len(c.Completed()) == len(c.children) {
			data := make([]any, len(c.children))
			for i, child := range c.children {
				data[i] = child.Data()
			}
			c.Complete(data)
			return true
		}
	}
	return false
}

func (c *Composite) fail(child task.Task) {
	if child == nil {
		c.Fail(nil, "no children to succeed")
		return
	}
	c.FailWith(child.Data(), child.Err())
}

func (c *Composite) stopRunning() {
	for _, child := range c.Children() {
		if child.State() == task.StateRunning {
			_ = child.Interrupt()
		}
	}
}

func (c *Composite) interruptChildren() {
	c.stopRunning()
}

func (c *Composite) reset() {
	c.stopping = true
	c.stopRunning()
	c.stopping = false

	for _, child := range c.children {
		_ = child.Reset()
	}
}

func (c *Composite) progress() (int, int) {
	var done, total int
	for _, child := range c.children {
		done += child.CompletedOperationsCount()
		total += child.OperationsCount()
	}
	return done, total
}

func (c *Composite) filter(state task.State) []task.Task {
	var out []task.Task
	for _, child := range c.children {
		if child.State() == state {
			out = append(out, child)
		}
	}
	return out
}

func (c *Composite) contains(t task.Task) bool {
	return c.indexOf(t) >= 0
}

func (c *Composite) indexOf(t task.Task) int {
	for i, child := range c.children {
		if child == t {
			return i
		}
	}
	return -1
}
