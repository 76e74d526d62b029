package graph

import (
	"github.com/shaiso/Taskflow/internal/decorator"
	"github.com/shaiso/Taskflow/internal/task"
)

type resolution[T any] struct {
	candidate T
	blockers  []task.Task
}

// Resolver выбирает кандидата с наивысшим приоритетом, все блокеры
// которого завершились успешно.
//
// Блокеры выполняются в графе, каждый обёрнут в Failsafe, поэтому ошибка
// одного не прерывает остальные. Когда все блокеры завершились, кандидаты
// перебираются в порядке добавления. Выбранный кандидат становится
// данными Resolver; сам он не запускается.
type Resolver[T any] struct {
	*Graph

	resolutions []resolution[T]
	wrapped     map[task.Task]*decorator.Failsafe
	finisher    *task.Func

	chosen    T
	hasChosen bool
}

// NewResolver создаёт пустой Resolver.
func NewResolver[T any]() *Resolver[T] {
	r := &Resolver[T]{
		wrapped: make(map[task.Task]*decorator.Failsafe),
	}
	r.Graph = newGraph(r, "resolver")
	r.beforeFirstRun = r.prepare
	r.completionData = r.result
	r.onReset = r.clearChoice
	return r
}

// AddResolution добавляет кандидата с его блокерами. Кандидаты, добавленные
// раньше, имеют больший приоритет.
func (r *Resolver[T]) AddResolution(candidate T, blockers ...task.Task) error {
	res := resolution[T]{candidate: candidate}

	for _, b := range blockers {
		if b == nil {
			return ErrNilTask
		}
		res.blockers = append(res.blockers, b)

		if _, ok := r.wrapped[b]; ok {
			continue
		}
		fs := decorator.NewFailsafe(b)
		r.wrapped[b] = fs
		if err := r.Add(fs); err != nil {
			return err
		}

		// Финальный шаг уже создан: подключаем новый блокер сразу.
		if r.finisher != nil {
			if err := r.Add(r.finisher, fs); err != nil {
				return err
			}
		}
	}

	r.resolutions = append(r.resolutions, res)
	return nil
}

// ChosenResolution возвращает выбранного кандидата.
func (r *Resolver[T]) ChosenResolution() (T, bool) {
	return r.chosen, r.hasChosen
}

// Resolutions возвращает число кандидатов.
func (r *Resolver[T]) Resolutions() int {
	return len(r.resolutions)
}

// prepare добавляет финальный шаг, зависящий от всех блокеров.
func (r *Resolver[T]) prepare() error {
	r.finisher = task.NewFunc("resolve", r.resolve)

	isBlocker := make(map[task.Task]bool, len(r.wrapped))
	for _, fs := range r.wrapped {
		isBlocker[fs] = true
	}

	var prereqs []task.Task
	for _, t := range r.Nodes() {
		if isBlocker[t] {
			prereqs = append(prereqs, t)
		}
	}
	return r.Add(r.finisher, prereqs...)
}

func (r *Resolver[T]) resolve() (any, error) {
	for _, res := range r.resolutions {
		if allCompleted(res.blockers) {
			r.chosen = res.candidate
			r.hasChosen = true
			return res.candidate, nil
		}
	}
	return nil, task.NewStructuralError(r.Name(), task.ErrNoResolution)
}

func (r *Resolver[T]) result() any {
	if !r.hasChosen {
		return nil
	}
	return r.chosen
}

func (r *Resolver[T]) clearChoice() {
	var zero T
	r.chosen = zero
	r.hasChosen = false
}

func allCompleted(tasks []task.Task) bool {
	for _, t := range tasks {
		if t.State() != task.StateCompleted {
			return false
		}
	}
	return true
}
