package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/api"
	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/repo"
	"github.com/shaiso/Taskflow/internal/task"
)

// watchDebounce — пауза после изменения файла перед перезапуском.
const watchDebounce = 200 * time.Millisecond

// ErrFlowFailed — flow завершился не COMPLETED.
var ErrFlowFailed = errors.New("flow failed")

// NewRunCmd создаёт команду запуска flow.
func NewRunCmd(appFn func() (*App, error)) *cobra.Command {
	var inputs []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "run FLOW",
		Short: "Run a flow file",
		Long: `Run builds the flow from a JSON file and runs it to completion.

With --watch the flow keeps running: every change to the file interrupts
the current run, rebuilds the flow and starts it again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
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

			rt, err := app.newRuntime(ctx, spec.Name, false)
			if err != nil {
				return err
			}
			defer rt.close()

			if rt.metrics != nil {
				handler := api.NewHandler(api.Config{Store: rt.store, Logger: app.Logger})
				serveHTTP(ctx, app.Config.Metrics.Addr, rt.metrics, handler, app.Logger)
			}

			flow, err := rt.build(spec, values)
			if err != nil {
				return err
			}

			if watch {
				return runWatch(ctx, rt, args[0], flow, values)
			}
			return runOnce(ctx, rt, flow)
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Rerun the flow whenever the file changes")

	return cmd
}

// runOnce выполняет flow до FINAL или до отмены ctx.
func runOnce(ctx context.Context, rt *runtime, flow *engine.Flow) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var exec *execution
	rt.loop.Post(func() {
		exec = rt.attach(flow, repo.SourceManual, func(*execution) { cancel() })
		exec.start()
	})

	_ = rt.loop.Run(runCtx)
	if exec == nil {
		return ctx.Err()
	}

	// Цикл остановлен сигналом: прерываем flow в этой же горутине.
	exec.abort()

	printRun(rt.app.Out, flow, exec.rec)
	if exec.rec.State != task.StateCompleted.String() {
		return fmt.Errorf("%w: %s: %s", ErrFlowFailed, flow.Name(), exec.rec.State)
	}
	return nil
}

// runWatch перезапускает flow при каждом изменении файла до отмены ctx.
func runWatch(ctx context.Context, rt *runtime, path string, flow *engine.Flow, inputs map[string]any) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Редакторы часто заменяют файл целиком, поэтому следим за каталогом.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	logger := rt.app.Logger.With("path", path)
	out := rt.app.Out

	var (
		exec    *execution
		pending clock.Timer
	)

	start := func(f *engine.Flow, source string) {
		exec = rt.attach(f, source, func(e *execution) {
			printRun(out, e.flow, e.rec)
			logger.Info("waiting for changes")
		})
		exec.start()
	}

	reload := func() {
		pending = nil

		spec, err := engine.LoadSpec(abs)
		if err != nil {
			logger.Error("reload failed, keeping previous flow", "error", err)
			return
		}
		next, err := rt.build(spec, inputs)
		if err != nil {
			logger.Error("rebuild failed, keeping previous flow", "error", err)
			return
		}

		exec.abort()
		logger.Info("flow file changed, restarting", "flow", next.Name())
		start(next, repo.SourceWatch)
	}

	rt.loop.Post(func() { start(flow, repo.SourceManual) })

	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				rt.loop.Post(func() {
					if pending != nil {
						pending.Stop()
					}
					pending = rt.loop.AfterFunc(watchDebounce, reload)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "error", err)
			}
		}
	}()

	err = rt.loop.Run(ctx)
	exec.abort()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stepResult — состояние шага в выводе run.
type stepResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// runResult — итог запуска в выводе run.
type runResult struct {
	*repo.RunRecord
	Duration string       `json:"duration"`
	Steps    []stepResult `json:"steps"`
}

func printRun(out *Output, flow *engine.Flow, rec *repo.RunRecord) {
	result := runResult{
		RunRecord: rec,
		Duration:  rec.Duration().Round(time.Millisecond).String(),
	}
	rows := make([][]string, 0, len(flow.Order))
	for _, id := range flow.Order {
		t := flow.Steps[id]
		result.Steps = append(result.Steps, stepResult{
			ID:    id,
			Name:  t.Name(),
			State: t.State().String(),
			Error: t.ErrorMessage(),
			Data:  t.Data(),
		})
		rows = append(rows, []string{
			id,
			t.State().String(),
			strconv.Itoa(t.CompletedOperationsCount()) + "/" + strconv.Itoa(t.OperationsCount()),
			t.ErrorMessage(),
		})
	}

	if out.JSONMode() {
		out.JSON(result)
		return
	}

	out.Table([]string{"STEP", "STATE", "PROGRESS", "ERROR"}, rows)
	msg := fmt.Sprintf("Run %s: %s %s in %s", rec.ID, rec.Flow, rec.State, result.Duration)
	if rec.Error != "" {
		msg += ": " + rec.Error
	}
	if len(rec.Data) > 0 && rec.State == task.StateCompleted.String() {
		msg += "\nResult: " + compactJSON(rec.Data)
	}
	out.Note(msg)
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) > 200 {
		return string(raw[:200]) + "..."
	}
	return string(raw)
}
