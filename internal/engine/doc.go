// Package engine строит деревья задач из декларативного описания flow.
//
// Включает:
//   - spec.go     — FlowSpec и разбор из JSON
//   - validate.go — валидация (ID, типы, ветки, шаблоны)
//   - dag.go      — проверка зависимостей шагов и порядок построения
//   - registry.go — реестр типов шагов, builtin.go — встроенные типы
//   - build.go    — Build: шаги → листья с декораторами → Graph или Chain
//   - template.go — рендеринг Go templates ({{ .Steps.fetch.Outputs.body }})
//   - dot.go      — экспорт графа в Graphviz DOT
//
// Flow в форме steps выполняется через graph.Graph, в форме stages —
// через graph.Chain. Построенные задачи однопоточны: запускать их нужно
// в одном цикле (clock.Loop).
package engine
