package mq

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Taskflow/internal/task"
)

// DefaultBufferSize — размер очереди EventPublisher по умолчанию.
const DefaultBufferSize = 256

// EventPublisher публикует события жизненного цикла задач в
// ExchangeEvents с ключом task.<flow>.<event>.
//
// Слушатели задач только ставят сообщение в буфер и не блокируются:
// при полном буфере событие отбрасывается с WARN. Отправку выполняет
// горутина, запущенная Start.
type EventPublisher struct {
	sink    Sink
	logger  *slog.Logger
	flow    string
	timeout time.Duration

	mu      sync.Mutex
	queue   chan *Message
	closed  bool
	started bool
	done    chan struct{}

	dropped atomic.Int64
	failed  atomic.Int64
}

// EventOption настраивает EventPublisher.
type EventOption func(*EventPublisher)

// WithBufferSize задаёт размер буфера сообщений.
func WithBufferSize(n int) EventOption {
	return func(p *EventPublisher) {
		if n > 0 {
			p.queue = make(chan *Message, n)
		}
	}
}

// WithFlowName добавляет имя flow в каждое событие.
func WithFlowName(name string) EventOption {
	return func(p *EventPublisher) {
		p.flow = name
	}
}

// WithPublishTimeout ограничивает время одной публикации.
func WithPublishTimeout(d time.Duration) EventOption {
	return func(p *EventPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewEventPublisher создаёт EventPublisher поверх sink.
func NewEventPublisher(sink Sink, logger *slog.Logger, opts ...EventOption) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &EventPublisher{
		sink:    sink,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan *Message, DefaultBufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track подписывается на события задачи.
func (p *EventPublisher) Track(t task.Task) {
	for _, ev := range []task.Event{
		task.EventStarted,
		task.EventInterrupted,
		task.EventCompleted,
		task.EventErrored,
	} {
		t.On(ev, func(t task.Task) { p.enqueue(ev, t) }, p)
	}
}

// Untrack отписывается от событий задачи.
func (p *EventPublisher) Untrack(t task.Task) {
	t.OffScope(p)
}

// Start запускает отправку сообщений. Отправка идёт до Close.
func (p *EventPublisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.loop(ctx)
}

// Close прекращает приём событий и дожидается отправки буфера.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.done
	}
}

// Dropped возвращает число событий, отброшенных из-за полного буфера.
func (p *EventPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Failed возвращает число сообщений, которые не удалось отправить.
func (p *EventPublisher) Failed() int64 {
	return p.failed.Load()
}

func (p *EventPublisher) enqueue(ev task.Event, t task.Task) {
	msg := &Message{
		ID:   uuid.NewString(),
		Type: MessageTypeTaskEvent,
		Payload: TaskEventPayload{
			Flow:       p.flow,
			TaskID:     t.ID(),
			Task:       t.Name(),
			Event:      string(ev),
			State:      t.State().String(),
			Error:      t.ErrorMessage(),
			Completed:  t.CompletedOperationsCount(),
			Operations: t.OperationsCount(),
		},
		Timestamp: time.Now().UTC(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
		p.logger.Warn("event buffer full, dropping event",
			"task_id", t.ID(),
			"event", ev,
		)
	}
}

func (p *EventPublisher) loop(ctx context.Context) {
	defer close(p.done)

	for msg := range p.queue {
		payload, _ := msg.Payload.(TaskEventPayload)
		key := TaskRoutingKey(payload.Flow, payload.Event)

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		err := p.sink.Publish(pubCtx, ExchangeEvents, key, msg)
		cancel()

		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("failed to publish task event",
				"routing_key", key,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}
}
