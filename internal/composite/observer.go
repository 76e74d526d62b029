package composite

import "github.com/shaiso/Taskflow/internal/task"

// Observer следит за задачами, которыми не владеет: никогда не вызывает
// у них Run или Interrupt, только ждёт их завершения.
//
// Завершается успехом, когда все задачи в COMPLETED. В режиме failFast
// падает на первой ошибке; иначе ждёт финала всех и падает с данными
// первой упавшей задачи (в порядке списка).
type Observer struct {
	*task.Base

	tasks    []task.Task
	failFast bool
}

// NewObserver создаёт Observer.
func NewObserver(failFast bool, tasks ...task.Task) *Observer {
	o := &Observer{failFast: failFast}
	o.Base = task.NewBase(o, "observer", task.Handlers{
		Run:      o.evaluate,
		Progress: o.progress,
	})
	o.Add(tasks...)
	return o
}

// Tasks возвращает копию списка наблюдаемых задач.
func (o *Observer) Tasks() []task.Task {
	out := make([]task.Task, len(o.tasks))
	copy(out, o.tasks)
	return out
}

// Add добавляет задачи в наблюдение.
func (o *Observer) Add(tasks ...task.Task) {
	for _, t := range tasks {
		if t == nil || o.indexOf(t) >= 0 {
			continue
		}
		o.tasks = append(o.tasks, t)
		t.On(task.EventFinal, func(task.Task) { o.evaluate() }, o)
	}
	o.evaluate()
}

// Remove убирает задачи из наблюдения и сразу проверяет условие завершения.
func (o *Observer) Remove(tasks ...task.Task) {
	for _, t := range tasks {
		i := o.indexOf(t)
		if i < 0 {
			continue
		}
		t.OffScope(o)
		o.tasks = append(o.tasks[:i], o.tasks[i+1:]...)
	}
	o.evaluate()
}

func (o *Observer) evaluate() {
	if o.State() != task.StateRunning {
		return
	}

	var firstErr task.Task
	pending := 0
	for _, t := range o.tasks {
		switch t.State() {
		case task.StateCompleted:
		case task.StateErrored:
			if firstErr == nil {
				firstErr = t
			}
		default:
			pending++
		}
	}

	if firstErr != nil && (o.failFast || pending == 0) {
		o.FailWith(firstErr.Data(), firstErr.Err())
		return
	}
	if pending > 0 {
		return
	}

	data := make([]any, len(o.tasks))
	for i, t := range o.tasks {
		data[i] = t.Data()
	}
	o.Complete(data)
}

func (o *Observer) progress() (int, int) {
	var done, total int
	for _, t := range o.tasks {
		done += t.CompletedOperationsCount()
		total += t.OperationsCount()
	}
	return done, total
}

func (o *Observer) indexOf(t task.Task) int {
	for i, other := range o.tasks {
		if other == t {
			return i
		}
	}
	return -1
}
