package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/api"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/scheduler"
	"github.com/shaiso/Taskflow/internal/task"
)

// NewScheduleCmd создаёт команду запуска flow по расписанию.
func NewScheduleCmd(appFn func() (*App, error)) *cobra.Command {
	var cronExpr string
	var timezone string
	var addr string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "schedule FLOW --cron EXPR",
		Short: "Run a flow on a cron schedule",
		Long: `Schedule keeps the flow loaded and reruns it on every cron tick.
A tick that arrives while the previous run is still going is skipped.

The HTTP server exposes /metrics, /healthz, the flow state and controls
under /api/v1/flow and, with a store enabled, run history under /api/v1/runs.`,
		Example: `  taskflow schedule backup.json --cron "*/15 * * * *"
  taskflow schedule report.json --cron "0 9 * * 1-5" --tz Europe/Moscow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
			if err != nil {
				return err
			}
			if timezone == "" {
				timezone = app.Config.Schedule.Timezone
			}
			if addr == "" {
				addr = app.Config.Metrics.Addr
			}

			sched, err := scheduler.ParseSchedule(cronExpr, timezone)
			if err != nil {
				return err
			}
			spec, err := engine.LoadSpec(args[0])
			if err != nil {
				return err
			}
			values, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.newRuntime(ctx, spec.Name, true)
			if err != nil {
				return err
			}
			defer rt.close()

			flow, err := rt.build(spec, values)
			if err != nil {
				return err
			}

			return runSchedule(ctx, rt, flow, sched, addr)
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields or @every/@hourly descriptors)")
	cmd.Flags().StringVar(&timezone, "tz", "", "Timezone of the cron expression (defaults to config)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults to metrics.addr)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("cron")

	return cmd
}

// scheduled — flow под управлением Cron. Все поля используются только
// в горутине цикла.
type scheduled struct {
	rt     *runtime
	flow   *engine.Flow
	cron   *scheduler.Cron
	exec   *execution
	logger *slog.Logger
}

func runSchedule(ctx context.Context, rt *runtime, flow *engine.Flow, sched *scheduler.Schedule, addr string) error {
	logger := rt.app.Logger.With("flow", flow.Name(), "cron", sched.String())

	s := &scheduled{rt: rt, flow: flow, logger: logger}
	s.cron = scheduler.New(flow.Root, sched, rt.loop,
		scheduler.WithLogger(logger),
		scheduler.WithBeforeRun(func(task.Task) { s.attach(repo.SourceSchedule) }),
	)

	handler := api.NewHandler(api.Config{
		Store:  rt.store,
		Flow:   &loopController{s: s},
		Logger: rt.app.Logger,
	})
	serveHTTP(ctx, addr, rt.metrics, handler, rt.app.Logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var startErr error
	rt.loop.Post(func() {
		if startErr = s.cron.Start(); startErr != nil {
			cancel()
			return
		}
		logger.Info("schedule armed", "next", s.cron.Next())
	})

	err := rt.loop.Run(runCtx)
	s.cron.Stop()
	s.exec.abort()

	if startErr != nil {
		return startErr
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("schedule stopped", "runs", s.cron.Runs(), "skipped", s.cron.Skipped())
		return nil
	}
	return err
}

func (s *scheduled) attach(source string) {
	s.exec = s.rt.attach(s.flow, source, func(e *execution) {
		printRun(s.rt.app.Out, e.flow, e.rec)
		s.logger.Info("next run", "at", s.cron.Next())
	})
}

// loopController реализует api.Controller поверх цикла задач.
type loopController struct {
	s *scheduled
}

// call выполняет fn в горутине цикла и ждёт результат.
func (c *loopController) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	c.s.rt.loop.Post(func() { done <- fn() })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *loopController) Status(ctx context.Context) (api.FlowStatus, error) {
	var status api.FlowStatus
	err := c.call(ctx, func() error {
		status = flowStatus(c.s.flow)
		status.Schedule = c.s.cron.Schedule().String()
		status.Runs = c.s.cron.Runs()
		status.Skipped = c.s.cron.Skipped()
		if next := c.s.cron.Next(); !next.IsZero() {
			status.NextRun = &next
		}
		return nil
	})
	return status, err
}

func (c *loopController) Trigger(ctx context.Context) error {
	return c.call(ctx, func() error {
		root := c.s.flow.Root
		if root.State() == task.StateRunning {
			return api.ErrAlreadyRunning
		}
		if err := root.Reset(); err != nil {
			return err
		}
		c.s.attach(repo.SourceManual)
		c.s.exec.start()
		return nil
	})
}

func (c *loopController) Interrupt(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.s.flow.Root.State() != task.StateRunning {
			return api.ErrNotRunning
		}
		c.s.exec.abort()
		return nil
	})
}

// flowStatus снимает состояние flow. Вызывается в горутине цикла.
func flowStatus(flow *engine.Flow) api.FlowStatus {
	root := flow.Root
	status := api.FlowStatus{
		Flow:       flow.Name(),
		State:      root.State().String(),
		Error:      root.ErrorMessage(),
		Operations: root.OperationsCount(),
		Completed:  root.CompletedOperationsCount(),
		Steps:      make([]api.StepStatus, 0, len(flow.Order)),
	}
	for _, id := range flow.Order {
		t := flow.Steps[id]
		status.Steps = append(status.Steps, api.StepStatus{
			ID:    id,
			Name:  t.Name(),
			State: t.State().String(),
			Error: t.ErrorMessage(),
		})
	}
	return status
}
