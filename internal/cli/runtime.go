package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Taskflow/internal/api"
	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/leaf"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/task"
	"github.com/shaiso/Taskflow/internal/telemetry"
)

// runtime — цикл задач и подсистемы, которые подключаются к запуску flow:
// метрики, публикация событий в RabbitMQ, хранилище запусков.
type runtime struct {
	app  *App
	loop *clock.Loop

	metrics *telemetry.Metrics
	conn    *mq.Connection
	events  *mq.EventPublisher
	store   repo.Store

	trackers []engine.Tracker
}

// newRuntime подключает подсистемы, включённые в конфигурации.
// withMetrics включает метрики независимо от конфигурации.
func (a *App) newRuntime(ctx context.Context, flowName string, withMetrics bool) (*runtime, error) {
	cfg := a.Config
	rt := &runtime{
		app:  a,
		loop: clock.NewLoop(),
	}

	if withMetrics || cfg.Metrics.Enabled {
		rt.metrics = telemetry.NewMetrics(nil)
		rt.trackers = append(rt.trackers, rt.metrics)
	}

	if cfg.MQ.Enabled {
		conn, err := mq.NewConnection(cfg.MQ.URL, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		rt.conn = conn
		if err := mq.SetupTopology(ctx, conn); err != nil {
			rt.close()
			return nil, fmt.Errorf("setup topology: %w", err)
		}

		rt.events = mq.NewEventPublisher(mq.NewPublisher(conn, a.Logger), a.Logger,
			mq.WithFlowName(flowName),
			mq.WithBufferSize(cfg.MQ.BufferSize),
			mq.WithPublishTimeout(cfg.MQ.PublishTimeout()),
		)
		rt.events.Start(ctx)
		rt.trackers = append(rt.trackers, rt.events)
	}

	if cfg.Store.Enabled {
		store, err := repo.Open(ctx, cfg.Store.URL)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.store = store
	}

	return rt, nil
}

// close останавливает подсистемы. Буфер событий отправляется до закрытия соединения.
func (rt *runtime) close() {
	if rt.events != nil {
		rt.events.Close()
		if n := rt.events.Dropped() + rt.events.Failed(); n > 0 {
			rt.app.Logger.Warn("some task events were not published",
				"dropped", rt.events.Dropped(),
				"failed", rt.events.Failed(),
			)
		}
	}
	if rt.conn != nil {
		if err := rt.conn.Close(); err != nil {
			rt.app.Logger.Warn("failed to close rabbitmq connection", "error", err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.app.Logger.Warn("failed to close store", "error", err)
		}
	}
}

// env возвращает окружение построения flow из конфигурации.
func (rt *runtime) env(inputs map[string]any) engine.Env {
	flowCfg := rt.app.Config.Flow
	env := engine.LoopEnv(rt.loop)
	env.HTTP = leaf.HTTPDefaults{
		Timeout:      flowCfg.HTTPTimeout(),
		ResponseType: flowCfg.ResponseType,
	}
	env.DefaultTimeout = flowCfg.DefaultTimeout()
	env.Inputs = inputs
	env.Vars = flowCfg.Vars
	env.Logger = rt.app.Logger
	return env
}

// build строит flow и подключает к нему трекеры.
func (rt *runtime) build(spec *engine.FlowSpec, inputs map[string]any) (*engine.Flow, error) {
	return engine.Build(spec, rt.env(inputs), engine.WithTracker(rt.trackers...))
}

// execution — один запуск корневой задачи и его запись.
type execution struct {
	rt     *runtime
	flow   *engine.Flow
	rec    *repo.RunRecord
	detach func()
	done   bool
	onDone func(*execution)
}

// attach готовит запись о запуске и подписывается на FINAL корня.
// Вызывается в горутине цикла перед Run.
func (rt *runtime) attach(flow *engine.Flow, source string, onDone func(*execution)) *execution {
	e := &execution{
		rt:     rt,
		flow:   flow,
		rec:    repo.NewRecord(flow.Name(), source, time.Now()),
		onDone: onDone,
	}
	logger := telemetry.RunLogger(rt.app.Logger, flow.Name(), e.rec.ID.String())
	e.detach = telemetry.LogEvents(logger, flow.Root)

	flow.Root.On(task.EventFinal, func(task.Task) { e.finish() }, e)
	rt.save(e.rec)
	return e
}

// start запускает корневую задачу.
func (e *execution) start() {
	if err := e.flow.Root.Run(); err != nil {
		e.rt.app.Logger.Error("failed to start flow", "flow", e.flow.Name(), "error", err)
		e.finish()
	}
}

// abort прерывает незавершённый запуск и фиксирует его как INTERRUPTED.
func (e *execution) abort() {
	if e == nil || e.done {
		return
	}
	if e.flow.Root.State() == task.StateRunning {
		_ = e.flow.Root.Interrupt()
	}
	e.finish()
}

func (e *execution) finish() {
	if e.done {
		return
	}
	e.done = true
	e.flow.Root.OffScope(e)
	e.detach()

	if err := e.rec.Finish(e.flow.Root, time.Now()); err != nil {
		e.rt.app.Logger.Warn("failed to record run result", "run_id", e.rec.ID, "error", err)
	}
	e.rt.save(e.rec)

	if e.onDone != nil {
		e.onDone(e)
	}
}

func (rt *runtime) save(rec *repo.RunRecord) {
	if rt.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.store.Save(ctx, rec); err != nil {
		rt.app.Logger.Warn("failed to save run record", "run_id", rec.ID, "error", err)
	}
}

// serveHTTP поднимает HTTP сервер с /metrics и маршрутами api до отмены ctx.
func serveHTTP(ctx context.Context, addr string, metrics *telemetry.Metrics, handler *api.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()
}
