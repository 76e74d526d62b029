package scheduler

import (
	"log/slog"
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/task"
)

// Cron перезапускает корневую задачу по расписанию.
//
// На каждом срабатывании задача сбрасывается и запускается заново.
// Если предыдущий запуск ещё идёт, срабатывание пропускается.
// Все методы вызываются в горутине, которая обслуживает задачи.
type Cron struct {
	root   task.Task
	sched  *Schedule
	clock  clock.Clock
	logger *slog.Logger

	beforeRun func(task.Task)

	timer   clock.Timer
	next    time.Time
	runs    int
	skipped int
}

// Option настраивает Cron.
type Option func(*Cron)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cron) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBeforeRun вызывает fn перед каждым запуском по расписанию.
func WithBeforeRun(fn func(task.Task)) Option {
	return func(c *Cron) {
		c.beforeRun = fn
	}
}

// New создаёт Cron для корневой задачи root.
func New(root task.Task, sched *Schedule, c clock.Clock, opts ...Option) *Cron {
	cr := &Cron{
		root:   root,
		sched:  sched,
		clock:  c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cr)
	}
	return cr
}

// Start планирует ближайшее срабатывание. Повторный вызов ничего не делает.
func (c *Cron) Start() error {
	if c.timer != nil {
		return nil
	}
	return c.arm()
}

// Stop отменяет запланированное срабатывание. Идущий запуск не прерывается.
func (c *Cron) Stop() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.next = time.Time{}
}

// Schedule возвращает расписание.
func (c *Cron) Schedule() *Schedule {
	return c.sched
}

// Next возвращает время следующего срабатывания (нулевое, если остановлен).
func (c *Cron) Next() time.Time {
	return c.next
}

// Runs возвращает число запусков по расписанию.
func (c *Cron) Runs() int {
	return c.runs
}

// Skipped возвращает число пропущенных срабатываний.
func (c *Cron) Skipped() int {
	return c.skipped
}

func (c *Cron) arm() error {
	now := c.clock.Now()
	next, err := c.sched.NextDue(now)
	if err != nil {
		c.next = time.Time{}
		return err
	}
	c.next = next
	c.timer = c.clock.AfterFunc(next.Sub(now), c.tick)
	return nil
}

func (c *Cron) tick() {
	c.timer = nil
	c.fire()

	if err := c.arm(); err != nil {
		c.logger.Warn("schedule exhausted", "cron", c.sched.String(), "error", err)
	}
}

func (c *Cron) fire() {
	log := c.logger.With("task_id", c.root.ID(), "task", c.root.Name())

	if c.root.State() == task.StateRunning {
		c.skipped++
		log.Info("previous run still in progress, skipping tick")
		return
	}

	if err := c.root.Reset(); err != nil {
		log.Error("failed to reset task", "error", err)
		return
	}
	if c.beforeRun != nil {
		c.beforeRun(c.root)
	}

	c.runs++
	log.Info("scheduled run", "run", c.runs)
	if err := c.root.Run(); err != nil {
		log.Error("failed to start task", "error", err)
	}
}
