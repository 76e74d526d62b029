package graph

import "github.com/shaiso/Taskflow/internal/task"

// TopologicalOrder возвращает задачи в порядке, совместимом с зависимостями
// (алгоритм Кана). При равенстве сохраняется порядок добавления.
func (g *Graph) TopologicalOrder() ([]task.Task, error) {
	// Копируем inDegree, чтобы не трогать сами рёбра
	inDegree := make(map[nodeID]int, len(g.order))
	dependents := make(map[nodeID][]nodeID, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.prereqs[id])
		for _, dep := range g.sortedPrereqs(id) {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]nodeID, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]nodeID, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.order) {
		return nil, ErrCycleDetected
	}
	return g.tasks(order), nil
}

// Validate проверяет граф на циклы.
func (g *Graph) Validate() error {
	_, err := g.TopologicalOrder()
	return err
}
