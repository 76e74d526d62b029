package leaf

import (
	"fmt"
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/task"
)

// Ключи конфигурации delay.
const (
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
)

// Delay — пауза на заданное время.
//
// При прерывании остаток сохраняется и продолжается при следующем Run,
// если не включён RestartOnResume.
//
// Результат:
//
//	{"duration_ms": 5000}
type Delay struct {
	*task.Base

	clock    clock.Clock
	duration time.Duration
	restart  bool

	remaining time.Duration
	startedAt time.Time
	timer     clock.Timer
}

// NewDelay создаёт Delay.
func NewDelay(name string, d time.Duration, c clock.Clock) *Delay {
	if name == "" {
		name = "delay"
	}
	dl := &Delay{
		clock:     c,
		duration:  d,
		remaining: d,
	}
	dl.Base = task.NewBase(dl, name, task.Handlers{
		Run:       dl.run,
		Interrupt: dl.interrupt,
		Reset:     dl.reset,
	})
	return dl
}

// RestartOnResume — после прерывания пауза начинается заново.
func (d *Delay) RestartOnResume() *Delay {
	d.restart = true
	return d
}

// Duration возвращает полную длительность паузы.
func (d *Delay) Duration() time.Duration {
	return d.duration
}

// Remaining возвращает остаток паузы на момент последнего прерывания.
func (d *Delay) Remaining() time.Duration {
	return d.remaining
}

func (d *Delay) run() {
	if d.clock == nil {
		d.FailWith(nil, fmt.Errorf("%w: delay: clock is required", ErrInvalidConfig))
		return
	}
	if d.restart {
		d.remaining = d.duration
	}

	d.startedAt = d.clock.Now()
	d.timer = d.clock.AfterFunc(d.remaining, func() {
		d.timer = nil
		d.remaining = 0
		d.Complete(map[string]any{
			"duration_ms": d.duration.Milliseconds(),
		})
	})
}

func (d *Delay) interrupt() {
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil

	d.remaining -= clock.Since(d.clock, d.startedAt)
	if d.remaining < 0 {
		d.remaining = 0
	}
}

func (d *Delay) reset() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.remaining = d.duration
}

// ParseDelay извлекает длительность из конфигурации.
//
//	{"duration_sec": 10}  или  {"duration_ms": 5000}
func ParseDelay(config map[string]any) (time.Duration, error) {
	p := NewParams("delay", config)
	sec, ms := p.Int(configDurationSec), p.Int(configDurationMs)
	switch {
	case p.Err() != nil:
		return 0, p.Err()
	case sec > 0:
		return time.Duration(sec) * time.Second, nil
	case ms > 0:
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: delay: duration_sec or duration_ms required", ErrInvalidConfig)
}
