// Package mq публикует события жизненного цикла задач в RabbitMQ и
// читает их обратно.
//
// События идут в topic-обменник taskflow.events с ключом
// task.<flow>.<event>. Аудит-очередь events.audit получает все события,
// нечитаемые сообщения из неё попадают в dlq.events. Команда events
// по умолчанию читает через временную очередь (TailQueue), не забирая
// сообщения аудита.
package mq
