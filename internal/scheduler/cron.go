package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNoNextDue — расписание больше не срабатывает.
var ErrNoNextDue = errors.New("schedule has no next due time")

// cronParser — парсер cron-выражений (5 полей и дескрипторы @every, @hourly, ...).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule — разобранное расписание в заданной timezone.
type Schedule struct {
	expr  string
	sched cron.Schedule
	loc   *time.Location
}

// ParseSchedule разбирает cron-выражение.
// Пустая или неизвестная timezone означает UTC.
func ParseSchedule(expr, timezone string) (*Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}
	return &Schedule{expr: expr, sched: sched, loc: loc}, nil
}

// String возвращает исходное выражение.
func (s *Schedule) String() string {
	return s.expr
}

// NextDue вычисляет следующее время выполнения после from (в UTC).
func (s *Schedule) NextDue(from time.Time) (time.Time, error) {
	next := s.sched.Next(from.In(s.loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoNextDue, s.expr)
	}
	return next.UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
