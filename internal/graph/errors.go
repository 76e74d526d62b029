package graph

import "errors"

// Ошибки построения графа.
var (
	// ErrNilTask — в граф передан nil.
	ErrNilTask = errors.New("task is nil")

	// ErrUnknownPrerequisite — зависимость не добавлена в граф.
	ErrUnknownPrerequisite = errors.New("unknown prerequisite")

	// ErrCycleDetected — ребро замкнуло бы цикл.
	ErrCycleDetected = errors.New("cyclic dependency detected")

	// ErrChainStarted — First вызван после того, как в цепочке уже есть задачи.
	ErrChainStarted = errors.New("first called on non-empty chain")

	// ErrEmptyBatch — Then/Or вызваны без задач.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrNoBatch — Or вызван до First/Then.
	ErrNoBatch = errors.New("no batch to add alternative to")
)
