package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBadPayload — тело или payload сообщения не разбирается.
// Такие сообщения сразу уходят в DLQ.
var ErrBadPayload = errors.New("bad message payload")

// Handler обрабатывает одно сообщение. Ошибка приводит к nack.
type Handler func(ctx context.Context, d *Delivery) error

// DeclareFunc объявляет очередь перед каждой подпиской и возвращает её имя.
type DeclareFunc func(ch *amqp.Channel) (Queue, error)

// Delivery — разобранное сообщение и его AMQP атрибуты.
type Delivery struct {
	Message     Message
	RoutingKey  string
	Headers     amqp.Table
	Redelivered bool
}

// ConsumerConfig — конфигурация Consumer. Нужно задать Queue или Declare.
type ConsumerConfig struct {
	Queue    Queue
	Declare  DeclareFunc
	Handler  Handler
	Prefetch int
}

// Consumer читает сообщения из очереди и передаёт их Handler.
//
// Успешно обработанные сообщения подтверждаются. Сообщение с ошибкой
// обработчика возвращается в очередь один раз; повторная ошибка или
// ErrBadPayload отправляют его в DLQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	cfg      ConsumerConfig
	prefetch int
}

// NewConsumer создаёт Consumer. Без Queue и Declare читается QueueEventsAudit.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Queue == "" && cfg.Declare == nil {
		cfg.Queue = QueueEventsAudit
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		conn:     conn,
		logger:   logger,
		cfg:      cfg,
		prefetch: prefetch,
	}
}

// Run читает сообщения до отмены ctx и возвращает ctx.Err().
// Ошибка первой подписки возвращается сразу; после разрыва соединения
// Run ждёт переподключения и подписывается заново.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, queue, err := c.subscribe()
	if err != nil {
		return err
	}

	for {
		c.logger.Info("consumer started", "queue", queue)
		c.drain(ctx, deliveries)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
			}

			deliveries, queue, err = c.subscribe()
			if err == nil {
				break
			}
			c.logger.Warn("resubscribe failed, waiting for reconnect", "error", err)
		}
	}
}

// subscribe объявляет очередь (если задан Declare) и начинает чтение.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, Queue, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, "", ErrNoChannel
	}

	queue := c.cfg.Queue
	if c.cfg.Declare != nil {
		q, err := c.cfg.Declare(ch)
		if err != nil {
			return nil, "", err
		}
		queue = q
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(string(queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, queue, nil
}

// drain обрабатывает сообщения, пока канал доставки открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed")
				return
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	msg, err := decode(raw)
	if err == nil {
		err = c.cfg.Handler(ctx, &Delivery{
			Message:     msg,
			RoutingKey:  raw.RoutingKey,
			Headers:     raw.Headers,
			Redelivered: raw.Redelivered,
		})
	}

	logger := c.logger.With("routing_key", raw.RoutingKey, "message_id", raw.MessageId)
	var ackErr error
	switch settle(err, raw.Redelivered) {
	case settleAck:
		ackErr = raw.Ack(false)
	case settleRequeue:
		logger.Warn("handler failed, requeueing", "error", err)
		ackErr = raw.Nack(false, true)
	case settleDeadLetter:
		logger.Error("message dead-lettered", "error", err)
		ackErr = raw.Nack(false, false)
	}
	if ackErr != nil {
		logger.Warn("failed to settle delivery", "error", ackErr)
	}
}

// settlement — чем закончить доставку.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleDeadLetter
)

func settle(err error, redelivered bool) settlement {
	switch {
	case err == nil:
		return settleAck
	case errors.Is(err, ErrBadPayload), redelivered:
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

// decode разбирает тело доставки. Тип сообщения берётся из AMQP Type,
// если в теле его нет.
func decode(raw amqp.Delivery) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if msg.Type == "" {
		msg.Type = MessageType(raw.Type)
	}
	if msg.ID == "" {
		msg.ID = raw.MessageId
	}
	return msg, nil
}

// TaskEventHandler адаптирует обработчик событий задач к Handler.
// Сообщения других типов подтверждаются без вызова fn.
func TaskEventHandler(fn func(ctx context.Context, msg Message, ev TaskEventPayload) error) Handler {
	return func(ctx context.Context, d *Delivery) error {
		if d.Message.Type != MessageTypeTaskEvent {
			return nil
		}
		ev, err := ParsePayload[TaskEventPayload](&d.Message)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return fn(ctx, d.Message, ev)
	}
}

// ParsePayload приводит payload к T. После json.Unmarshal конверта
// payload — это map[string]any, поэтому он перекодируется.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T
	if v, ok := msg.Payload.(T); ok {
		return v, nil
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
