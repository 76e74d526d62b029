package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake — часы с ручным управлением временем.
//
// Таймеры срабатывают только внутри Advance, в горутине вызывающего,
// в порядке дедлайнов (при равенстве — в порядке создания).
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	f        *Fake
	deadline time.Time
	seq      uint64
	fn       func()
	active   bool
}

// NewFake создаёт Fake, начиная с момента start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now возвращает текущее время.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc регистрирует таймер. Отрицательная длительность трактуется как ноль.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTimer{
		f:        f,
		deadline: f.now.Add(d),
		seq:      f.seq,
		fn:       fn,
		active:   true,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance сдвигает время на d и вызывает наступившие таймеры.
// Таймеры, созданные во время вызова и попавшие в окно, тоже срабатывают.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// Pending возвращает число активных таймеров.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) popDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.timers) == 0 {
		return nil
	}

	sort.SliceStable(f.timers, func(i, j int) bool {
		a, b := f.timers[i], f.timers[j]
		if !a.deadline.Equal(b.deadline) {
			return a.deadline.Before(b.deadline)
		}
		return a.seq < b.seq
	})

	t := f.timers[0]
	if t.deadline.After(target) {
		return nil
	}

	f.timers = f.timers[1:]
	t.active = false
	if t.deadline.After(f.now) {
		f.now = t.deadline
	}
	return t
}

func (f *Fake) remove(t *fakeTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !t.active {
		return false
	}
	t.active = false
	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			break
		}
	}
	return true
}

func (t *fakeTimer) Stop() bool {
	return t.f.remove(t)
}
