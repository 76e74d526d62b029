package task

// Manual — лист, который завершает внешний код через Complete или Fail.
//
// Используется как заглушка для операций, результат которых приходит
// извне, и в тестах композиций.
type Manual struct {
	*Base

	runs       int
	interrupts int
	resets     int
}

// NewManual создаёт Manual.
func NewManual(name string) *Manual {
	m := &Manual{}
	m.Base = NewBase(m, name, Handlers{
		Run:       func() { m.runs++ },
		Interrupt: func() { m.interrupts++ },
		Reset:     func() { m.resets++ },
	})
	return m
}

// Runs — сколько раз вызывался обработчик запуска (включая продолжения).
func (m *Manual) Runs() int { return m.runs }

// Interrupts — сколько раз задачу прерывали.
func (m *Manual) Interrupts() int { return m.interrupts }

// Resets — сколько раз задачу сбрасывали.
func (m *Manual) Resets() int { return m.resets }

// Func — лист, который синхронно выполняет функцию.
type Func struct {
	*Base
	fn func() (any, error)
}

// NewFunc создаёт Func. Ошибка fn переводит задачу в ERRORED без изменений.
func NewFunc(name string, fn func() (any, error)) *Func {
	f := &Func{fn: fn}
	f.Base = NewBase(f, name, Handlers{Run: f.run})
	return f
}

func (f *Func) run() {
	if f.fn == nil {
		f.Complete(nil)
		return
	}
	data, err := f.fn()
	if err != nil {
		f.FailWith(data, err)
		return
	}
	f.Complete(data)
}
