// Package cli реализует команды taskflow.
//
// Команды:
//   - run FLOW [--watch]       — выполнить flow; с --watch перезапускать при изменении файла
//   - validate FLOW...         — проверить flow файлы
//   - graph FLOW               — вывести граф шагов в Graphviz DOT
//   - schedule FLOW --cron EXPR — перезапускать flow по расписанию, отдавать /metrics
//   - events                   — читать события задач из RabbitMQ
//   - runs list|show           — история запусков из хранилища
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей appFn — замыкание, которое загружает конфигурацию и
// логгер после парсинга PersistentFlags.
//
// runtime связывает цикл задач с подсистемами из конфигурации:
// telemetry.Metrics и mq.EventPublisher подключаются к каждой задаче
// как трекеры engine, repo.Store получает запись о каждом запуске.
//
// Данные выводятся в stdout (таблица или JSON с флагом --json),
// сообщения — в stderr: taskflow runs list --json | jq .
package cli
