package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeEvents Exchange = "taskflow.events"
	ExchangeDLQ    Exchange = "taskflow.dlq"
)

const (
	QueueEventsAudit Queue = "events.audit"
	QueueDLQEvents   Queue = "dlq.events"
)

const (
	// RoutingKeyAllTasks совпадает с событиями всех flow.
	RoutingKeyAllTasks RoutingKey = "task.#"
	RoutingKeyDLQ      RoutingKey = "events"
)

// defaultFlowSegment заменяет пустое имя flow в ключе.
const defaultFlowSegment = "_"

// TaskRoutingKey возвращает ключ события: task.<flow>.<event>.
func TaskRoutingKey(flow, event string) RoutingKey {
	return RoutingKey("task." + flowSegment(flow) + "." + event)
}

// FlowBindingKey совпадает со всеми событиями одного flow.
// Пустое имя означает все flow.
func FlowBindingKey(flow string) RoutingKey {
	if flow == "" {
		return RoutingKeyAllTasks
	}
	return RoutingKey("task." + flowSegment(flow) + ".*")
}

// flowSegment делает имя flow одним словом topic-ключа.
func flowSegment(flow string) string {
	if flow == "" {
		return defaultFlowSegment
	}
	return strings.NewReplacer(".", "_", "*", "_", "#", "_").Replace(flow)
}

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue    Queue
	key      RoutingKey
	exchange Exchange
}

// Topology — набор обменников, очередей и привязок.
type Topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// DefaultTopology — события в topic-обменнике, аудит-очередь
// со всеми событиями и DLQ для нечитаемых сообщений.
func DefaultTopology() Topology {
	return Topology{
		exchanges: []exchangeDecl{
			{ExchangeEvents, amqp.ExchangeTopic},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{QueueEventsAudit, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQ),
			}},
			{QueueDLQEvents, nil},
		},
		bindings: []bindingDecl{
			{QueueEventsAudit, RoutingKeyAllTasks, ExchangeEvents},
			{QueueDLQEvents, RoutingKeyDLQ, ExchangeDLQ},
		},
	}
}

// Declare объявляет топологию на канале. Все объекты durable.
func (t Topology) Declare(ch *amqp.Channel) error {
	for _, ex := range t.exchanges {
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	for _, q := range t.queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	for _, b := range t.bindings {
		if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// SetupTopology объявляет DefaultTopology.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, DefaultTopology().Declare)
}

// TailQueue возвращает DeclareFunc для временной очереди: эксклюзивной,
// удаляемой при отключении и привязанной к событиям flow. Сообщения
// аудит-очереди при этом не забираются.
func TailQueue(flow string) DeclareFunc {
	key := FlowBindingKey(flow)
	return func(ch *amqp.Channel) (Queue, error) {
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return "", fmt.Errorf("declare tail queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, string(key), string(ExchangeEvents), false, nil); err != nil {
			return "", fmt.Errorf("bind tail queue to %s: %w", key, err)
		}
		return Queue(q.Name), nil
	}
}
