package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeTaskEvent MessageType = "task.event"
)

// appID — поле AppId всех публикуемых сообщений.
const appID = "taskflow"

// Заголовки AMQP с полями события, для фильтрации без разбора тела.
const (
	HeaderFlow  = "x-flow"
	HeaderEvent = "x-task-event"
)

// Message — конверт сообщения. Тело AMQP — JSON этой структуры.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// TaskEventPayload — событие жизненного цикла задачи.
type TaskEventPayload struct {
	Flow       string `json:"flow,omitempty"`
	TaskID     string `json:"task_id"`
	Task       string `json:"task"`
	Event      string `json:"event"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	Completed  int    `json:"completed"`
	Operations int    `json:"operations"`
}

// Sink принимает готовые сообщения. *Publisher реализует Sink.
type Sink interface {
	Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error
}

// Publisher отправляет сообщения через Connection.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish отправляет msg как persistent сообщение.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	pub, err := publishing(msg)
	if err != nil {
		return err
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, pub)
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"routing_key", routingKey,
		"message_id", msg.ID,
	)
	return nil
}

// publishing кодирует сообщение в AMQP publishing.
func publishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		AppId:        appID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	}
	if ev, ok := msg.Payload.(TaskEventPayload); ok {
		pub.Headers = amqp.Table{
			HeaderFlow:  ev.Flow,
			HeaderEvent: ev.Event,
		}
	}
	return pub, nil
}
