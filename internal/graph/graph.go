// Package graph содержит планировщик задач по графу зависимостей
// и построенные на нём Chain и Resolver.
//
// Структура:
//   - graph.go    — Graph: узлы, зависимости, frontier, планирование
//   - topo.go     — топологическая сортировка (алгоритм Кана)
//   - chain.go    — Chain: First/Then/Or поверх Graph и StopOnSuccess
//   - resolver.go — Resolver: выбор кандидата по успешности блокеров
//
// Узел запускается, как только все его зависимости в COMPLETED.
// Ошибка любого узла прерывает остальные и переводит граф в ERRORED.
// Циклы отсекаются при добавлении рёбер.
package graph

import (
	"fmt"

	"github.com/shaiso/Taskflow/internal/task"
)

type nodeID int

// node — узел графа. Рёбра хранятся отдельно, в Graph.prereqs.
type node struct {
	id   nodeID
	task task.Task
}

// Graph — планировщик задач по графу зависимостей.
type Graph struct {
	*task.Base

	nodes    map[nodeID]*node
	order    []nodeID
	index    map[task.Task]nodeID
	prereqs  map[nodeID]map[nodeID]struct{}
	frontier []nodeID
	nextID   nodeID

	beforeFirstRun func() error
	prepared       bool
	stopping       bool

	// Точки расширения для Chain и Resolver.
	completionData func() any
	onReset        func()
}

// New создаёт пустой Graph.
func New() *Graph {
	return newGraph(nil, "graph")
}

// newGraph создаёт Graph, события которого приходят от self.
func newGraph(self task.Task, name string) *Graph {
	g := &Graph{
		nodes:   make(map[nodeID]*node),
		index:   make(map[task.Task]nodeID),
		prereqs: make(map[nodeID]map[nodeID]struct{}),
	}
	if self == nil {
		self = g
	}
	g.Base = task.NewBase(self, name, task.Handlers{
		Run:       g.run,
		Interrupt: g.interruptNodes,
		Reset:     g.reset,
		Progress:  g.progress,
	})
	return g
}

// SetBeforeFirstRun задаёт функцию, которая вызывается один раз перед
// первым планированием и может достроить граф. Ошибка переводит граф
// в ERRORED.
func (g *Graph) SetBeforeFirstRun(fn func() error) {
	g.beforeFirstRun = fn
}

// Add добавляет задачу с явным набором зависимостей. Зависимости уже
// должны быть в графе. Повторное добавление задачи объединяет зависимости.
func (g *Graph) Add(t task.Task, prereqs ...task.Task) error {
	if t == nil {
		return ErrNilTask
	}

	deps := make([]nodeID, 0, len(prereqs))
	for _, p := range prereqs {
		if p == nil {
			return ErrNilTask
		}
		if p == t {
			return fmt.Errorf("%w: %s depends on itself", ErrCycleDetected, t.Name())
		}
		pid, ok := g.index[p]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPrerequisite, p.Name())
		}
		deps = append(deps, pid)
	}

	id, exists := g.index[t]
	if exists {
		for _, pid := range deps {
			if g.reaches(pid, id) {
				return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, g.nodes[pid].task.Name(), t.Name())
			}
		}
	} else {
		id = g.insert(t)
	}

	for _, pid := range deps {
		g.prereqs[id][pid] = struct{}{}
	}

	if g.State() == task.StateRunning {
		g.schedule()
	}
	return nil
}

// AddToEnd добавляет задачу, зависящую от текущего frontier,
// и делает её новым frontier.
func (g *Graph) AddToEnd(t task.Task) error {
	return g.AddAllToEnd(t)
}

// AddAllToEnd добавляет параллельную пачку задач, зависящих от текущего
// frontier. Пачка становится новым frontier.
func (g *Graph) AddAllToEnd(tasks ...task.Task) error {
	prev := g.Frontier()
	for _, t := range tasks {
		if err := g.Add(t, prev...); err != nil {
			return err
		}
	}

	g.frontier = g.frontier[:0:0]
	for _, t := range tasks {
		g.frontier = append(g.frontier, g.index[t])
	}
	return nil
}

// RemoveAll удаляет задачи вместе со всеми их рёбрами. Если frontier
// опустел, им становятся оставшиеся зависимости удалённых frontier-узлов.
func (g *Graph) RemoveAll(tasks ...task.Task) {
	var fallback []nodeID
	removed := false

	for _, t := range tasks {
		id, ok := g.index[t]
		if !ok {
			continue
		}
		removed = true

		if g.inFrontier(id) {
			fallback = append(fallback, g.sortedPrereqs(id)...)
		}

		t.OffScope(g)
		delete(g.index, t)
		delete(g.nodes, id)
		delete(g.prereqs, id)
		for _, deps := range g.prereqs {
			delete(deps, id)
		}
		g.order = removeID(g.order, id)
		g.frontier = removeID(g.frontier, id)

		if t.State() == task.StateRunning {
			g.stopping = true
			_ = t.Interrupt()
			g.stopping = false
		}
	}

	if len(g.frontier) == 0 {
		seen := make(map[nodeID]bool)
		for _, id := range fallback {
			if _, ok := g.nodes[id]; ok && !seen[id] {
				seen[id] = true
				g.frontier = append(g.frontier, id)
			}
		}
	}

	if removed && g.State() == task.StateRunning {
		g.schedule()
	}
}

// Contains сообщает, есть ли задача в графе.
func (g *Graph) Contains(t task.Task) bool {
	_, ok := g.index[t]
	return ok
}

// Len возвращает число узлов.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes возвращает задачи в порядке добавления.
func (g *Graph) Nodes() []task.Task {
	return g.tasks(g.order)
}

// Frontier возвращает последнюю добавленную через AddToEnd/AddAllToEnd пачку.
func (g *Graph) Frontier() []task.Task {
	return g.tasks(g.frontier)
}

// Prerequisites возвращает зависимости задачи в порядке добавления.
func (g *Graph) Prerequisites(t task.Task) []task.Task {
	id, ok := g.index[t]
	if !ok {
		return nil
	}
	return g.tasks(g.sortedPrereqs(id))
}

// Dependents возвращает задачи, которые зависят от t.
func (g *Graph) Dependents(t task.Task) []task.Task {
	id, ok := g.index[t]
	if !ok {
		return nil
	}
	var out []task.Task
	for _, other := range g.order {
		if _, ok := g.prereqs[other][id]; ok {
			out = append(out, g.nodes[other].task)
		}
	}
	return out
}

func (g *Graph) insert(t task.Task) nodeID {
	g.nextID++
	id := g.nextID

	g.nodes[id] = &node{id: id, task: t}
	g.index[t] = id
	g.prereqs[id] = make(map[nodeID]struct{})
	g.order = append(g.order, id)

	t.On(task.EventFinal, func(task.Task) {
		if g.State() == task.StateRunning {
			g.schedule()
		}
	}, g)
	t.On(task.EventInterrupted, func(task.Task) {
		if g.State() == task.StateRunning && !g.stopping {
			_ = g.Interrupt()
		}
	}, g)
	return id
}

// reaches проверяет, достижим ли target из from по рёбрам зависимостей.
func (g *Graph) reaches(from, target nodeID) bool {
	if from == target {
		return true
	}
	visited := make(map[nodeID]bool)
	stack := []nodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for dep := range g.prereqs[id] {
			if dep == target {
				return true
			}
			stack = append(stack, dep)
		}
	}
	return false
}

func (g *Graph) run() {
	if !g.prepared {
		g.prepared = true
		if g.beforeFirstRun != nil {
			if err := g.beforeFirstRun(); err != nil {
				g.FailWith(nil, task.NewStructuralError(g.Name(), err))
				return
			}
		}
	}
	g.schedule()
}

// schedule запускает готовые узлы и проверяет завершение графа.
func (g *Graph) schedule() {
	if g.State() != task.StateRunning {
		return
	}

	for _, id := range g.order {
		if t := g.nodes[id].task; t.State() == task.StateErrored {
			g.fail(t)
			return
		}
	}

	pending := false
	for _, id := range append([]nodeID(nil), g.order...) {
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		switch n.task.State() {
		case task.StateCompleted:
		case task.StateRunning:
			pending = true
		default:
			pending = true
			if g.ready(id) {
				_ = n.task.Run()
				if g.State() != task.StateRunning {
					return
				}
			}
		}
	}

	if !pending {
		g.Complete(g.result())
	}
}

func (g *Graph) ready(id nodeID) bool {
	for dep := range g.prereqs[id] {
		if g.nodes[dep].task.State() != task.StateCompleted {
			return false
		}
	}
	return true
}

func (g *Graph) fail(t task.Task) {
	g.stopping = true
	g.stopRunning()
	g.stopping = false
	g.FailWith(t.Data(), t.Err())
}

func (g *Graph) result() any {
	if g.completionData != nil {
		return g.completionData()
	}
	data := make([]any, 0, len(g.order))
	for _, id := range g.order {
		data = append(data, g.nodes[id].task.Data())
	}
	return data
}

func (g *Graph) stopRunning() {
	for _, t := range g.Nodes() {
		if t.State() == task.StateRunning {
			_ = t.Interrupt()
		}
	}
}

func (g *Graph) interruptNodes() {
	g.stopRunning()
}

func (g *Graph) reset() {
	g.stopping = true
	g.stopRunning()
	g.stopping = false

	for _, t := range g.Nodes() {
		_ = t.Reset()
	}
	if g.onReset != nil {
		g.onReset()
	}
}

func (g *Graph) progress() (int, int) {
	var done, total int
	for _, id := range g.order {
		t := g.nodes[id].task
		done += t.CompletedOperationsCount()
		total += t.OperationsCount()
	}
	return done, total
}

func (g *Graph) inFrontier(id nodeID) bool {
	for _, f := range g.frontier {
		if f == id {
			return true
		}
	}
	return false
}

// sortedPrereqs возвращает зависимости узла в порядке добавления узлов.
func (g *Graph) sortedPrereqs(id nodeID) []nodeID {
	deps := g.prereqs[id]
	out := make([]nodeID, 0, len(deps))
	for _, other := range g.order {
		if _, ok := deps[other]; ok {
			out = append(out, other)
		}
	}
	return out
}

func (g *Graph) tasks(ids []nodeID) []task.Task {
	out := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id].task)
	}
	return out
}

func removeID(ids []nodeID, id nodeID) []nodeID {
	for i, other := range ids {
		if other == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
