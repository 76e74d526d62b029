package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Taskflow/internal/task"
)

// now подменяется в тестах.
var now = time.Now

// Metrics собирает Prometheus метрики жизненного цикла задач.
//
//   - taskflow_task_events_total{event}        — события задач
//   - taskflow_tasks_running                   — задачи в RUNNING
//   - taskflow_task_duration_seconds{state}    — время от запуска до COMPLETED/ERRORED/INTERRUPTED
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	running  prometheus.Gauge
	duration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics регистрирует метрики в reg. Если reg == nil, создаётся
// новый реестр.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_task_events_total",
			Help: "Task lifecycle events by type",
		}, []string{"event"}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskflow_tasks_running",
			Help: "Tasks currently in RUNNING state",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskflow_task_duration_seconds",
			Help:    "Time from task start to leaving RUNNING",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"state"}),
		started: make(map[string]time.Time),
	}
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Track подписывает метрики на события задачи.
func (m *Metrics) Track(t task.Task) {
	t.On(task.EventStarted, m.onStarted, m)
	t.On(task.EventCompleted, m.onStopped(task.EventCompleted), m)
	t.On(task.EventErrored, m.onStopped(task.EventErrored), m)
	t.On(task.EventInterrupted, m.onStopped(task.EventInterrupted), m)
}

// Untrack отписывает метрики от задачи.
func (m *Metrics) Untrack(t task.Task) {
	t.OffScope(m)
}

func (m *Metrics) onStarted(t task.Task) {
	m.events.WithLabelValues(string(task.EventStarted)).Inc()
	m.running.Inc()

	m.mu.Lock()
	m.started[t.ID()] = now()
	m.mu.Unlock()
}

func (m *Metrics) onStopped(ev task.Event) task.Listener {
	return func(t task.Task) {
		m.events.WithLabelValues(string(ev)).Inc()

		m.mu.Lock()
		startedAt, ok := m.started[t.ID()]
		delete(m.started, t.ID())
		m.mu.Unlock()

		if !ok {
			return
		}
		m.running.Dec()
		m.duration.WithLabelValues(t.State().String()).Observe(now().Sub(startedAt).Seconds())
	}
}
