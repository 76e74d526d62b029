package task

// Event — тип события жизненного цикла.
type Event string

// События жизненного цикла.
const (
	// EventStarted — задача перешла в RUNNING.
	EventStarted Event = "started"

	// EventInterrupted — задача приостановлена.
	EventInterrupted Event = "interrupted"

	// EventCompleted — задача успешно завершена.
	EventCompleted Event = "completed"

	// EventErrored — задача завершилась с ошибкой.
	EventErrored Event = "errored"

	// EventFinal — срабатывает сразу после COMPLETED или ERRORED,
	// для подписчиков, которым важен только факт завершения.
	EventFinal Event = "final"
)

// Events — все события в порядке объявления.
var Events = []Event{EventStarted, EventInterrupted, EventCompleted, EventErrored, EventFinal}

// Listener — обработчик события. Получает задачу, которая его породила.
type Listener func(t Task)

// ListenerID — идентификатор подписки, возвращается из On.
type ListenerID uint64

type subscription struct {
	id      ListenerID
	fn      Listener
	scope   any
	removed bool
}

// Emitter — упорядоченные списки подписчиков по типу события.
//
// Рассылка идёт по снимку списка: подписчик, удалённый во время рассылки,
// больше не вызывается, а оставшиеся вызываются ровно один раз.
//
// scope — произвольный сравнимый ключ владельца (обычно указатель);
// OffScope снимает все подписки этого владельца разом.
type Emitter struct {
	subs   map[Event][]*subscription
	nextID ListenerID
}

// On добавляет подписчика и возвращает идентификатор подписки.
func (e *Emitter) On(ev Event, fn Listener, scope any) ListenerID {
	if e.subs == nil {
		e.subs = make(map[Event][]*subscription)
	}
	e.nextID++
	e.subs[ev] = append(e.subs[ev], &subscription{
		id:    e.nextID,
		fn:    fn,
		scope: scope,
	})
	return e.nextID
}

// Off удаляет подписку по идентификатору.
func (e *Emitter) Off(ev Event, id ListenerID) {
	list := e.subs[ev]
	for i, s := range list {
		if s.id == id {
			s.removed = true
			e.subs[ev] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// OffScope удаляет все подписки, зарегистрированные с данным scope.
func (e *Emitter) OffScope(scope any) {
	if scope == nil {
		return
	}
	for ev, list := range e.subs {
		kept := make([]*subscription, 0, len(list))
		for _, s := range list {
			if s.scope == scope {
				s.removed = true
				continue
			}
			kept = append(kept, s)
		}
		e.subs[ev] = kept
	}
}

// Count возвращает количество подписчиков на событие.
func (e *Emitter) Count(ev Event) int {
	return len(e.subs[ev])
}

// Emit вызывает подписчиков события по снимку списка.
func (e *Emitter) Emit(ev Event, source Task) {
	list := e.subs[ev]
	if len(list) == 0 {
		return
	}
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)

	for _, s := range snapshot {
		if s.removed {
			continue
		}
		s.fn(source)
	}
}
