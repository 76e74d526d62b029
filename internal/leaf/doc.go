// Package leaf содержит листовые задачи, которые оборачивают одну
// внешнюю операцию и соблюдают контракт task.Task.
//
// Типы:
//   - Delay — пауза на заданное время (остаток сохраняется при прерывании)
//   - HTTP  — HTTP запрос; сам запрос идёт в отдельной горутине,
//     результат возвращается в цикл задач через Poster
//
// Params читает map[string]any конфигурацию шага и отвергает значения
// не того типа; им пользуются и листья, и движок flow.
package leaf
