package graph

import (
	"github.com/shaiso/Taskflow/internal/composite"
	"github.com/shaiso/Taskflow/internal/task"
)

// Chain — построитель последовательностей поверх Graph.
//
//	graph.NewChain().
//	    First(fetchA, fetchB).   // параллельно
//	    Then(merge).             // после обоих
//	    Or(mergeFallback).       // если merge упал
//	    Then(publish)            // после merge или mergeFallback
//
// Ошибка построения запоминается: последующие вызовы ничего не делают,
// а Run переводит цепочку в ERRORED (см. BuildErr).
type Chain struct {
	*Graph

	current   []task.Task
	fallbacks map[task.Task]*composite.Composite
	buildErr  error
}

// NewChain создаёт пустую цепочку.
func NewChain() *Chain {
	c := &Chain{
		fallbacks: make(map[task.Task]*composite.Composite),
	}
	c.Graph = newGraph(c, "chain")
	c.beforeFirstRun = func() error { return c.buildErr }
	c.completionData = c.result
	return c
}

// BuildErr возвращает первую ошибку построения.
func (c *Chain) BuildErr() error {
	return c.buildErr
}

// Current возвращает последнюю пачку цепочки.
func (c *Chain) Current() []task.Task {
	out := make([]task.Task, len(c.current))
	copy(out, c.current)
	return out
}

// First начинает цепочку. Допустим только на пустой цепочке.
func (c *Chain) First(tasks ...task.Task) *Chain {
	if c.buildErr != nil {
		return c
	}
	if c.Len() > 0 {
		c.buildErr = ErrChainStarted
		return c
	}
	return c.Then(tasks...)
}

// Then добавляет параллельную пачку, зависящую от предыдущей.
func (c *Chain) Then(tasks ...task.Task) *Chain {
	if c.buildErr != nil {
		return c
	}
	if len(tasks) == 0 {
		c.buildErr = ErrEmptyBatch
		return c
	}
	if err := c.AddAllToEnd(tasks...); err != nil {
		c.buildErr = err
		return c
	}
	c.current = append([]task.Task(nil), tasks...)
	return c
}

// Or добавляет альтернативу к последней пачке: дальнейшие Then будут
// ждать успеха пачки ИЛИ альтернативы. Альтернатива запускается только
// после ошибки пачки.
func (c *Chain) Or(tasks ...task.Task) *Chain {
	if c.buildErr != nil {
		return c
	}
	if len(tasks) == 0 {
		c.buildErr = ErrEmptyBatch
		return c
	}
	if len(c.current) == 0 {
		c.buildErr = ErrNoBatch
		return c
	}

	alt := batch(tasks)

	// Повторный Or дополняет уже созданный StopOnSuccess.
	if len(c.current) == 1 {
		if sos, ok := c.fallbacks[c.current[0]]; ok {
			sos.Add(alt)
			return c
		}
	}

	prereqs := c.batchPrerequisites(c.current)
	primary := batch(c.current)
	c.RemoveAll(c.current...)

	sos := composite.NewStopOnSuccess(false, primary, alt)
	sos.SetName("or(" + primary.Name() + ")")
	if err := c.Add(sos, prereqs...); err != nil {
		c.buildErr = err
		return c
	}
	c.frontier = []nodeID{c.index[sos]}
	c.fallbacks[sos] = sos
	c.current = []task.Task{sos}
	return c
}

// Else — синоним Or.
func (c *Chain) Else(tasks ...task.Task) *Chain {
	return c.Or(tasks...)
}

// Otherwise — синоним Or.
func (c *Chain) Otherwise(tasks ...task.Task) *Chain {
	return c.Or(tasks...)
}

// batchPrerequisites объединяет зависимости задач пачки.
func (c *Chain) batchPrerequisites(tasks []task.Task) []task.Task {
	seen := make(map[task.Task]bool)
	var out []task.Task
	for _, t := range tasks {
		for _, p := range c.Prerequisites(t) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// result — данные последней пачки.
func (c *Chain) result() any {
	switch len(c.current) {
	case 0:
		return nil
	case 1:
		return c.current[0].Data()
	}
	data := make([]any, len(c.current))
	for i, t := range c.current {
		data[i] = t.Data()
	}
	return data
}

// batch превращает пачку в одну задачу: одиночную как есть,
// несколько — в параллельный Composite.
func batch(tasks []task.Task) task.Task {
	if len(tasks) == 1 {
		return tasks[0]
	}
	c := composite.NewComposite(true, tasks...)
	c.SetName("batch")
	return c
}
