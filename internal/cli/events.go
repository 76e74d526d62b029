package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/mq"
)

// eventLine — событие задачи в выводе events.
type eventLine struct {
	Time string `json:"time"`
	mq.TaskEventPayload
}

// NewEventsCmd создаёт команду чтения событий задач из RabbitMQ.
func NewEventsCmd(appFn func() (*App, error)) *cobra.Command {
	var queue string
	var flowFilter string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail task lifecycle events from RabbitMQ",
		Long: `Events prints task lifecycle events as they are published.

Without --queue a temporary queue bound to the flow's events is used, so
the audit queue keeps its messages. --queue events.audit drains the audit
queue instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := mq.NewConnection(app.Config.MQ.URL, app.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}

			cfg := mq.ConsumerConfig{Queue: mq.Queue(queue), Prefetch: 32}
			if queue == "" {
				cfg.Declare = mq.TailQueue(flowFilter)
			}

			out := app.Out
			cfg.Handler = mq.TaskEventHandler(func(_ context.Context, msg mq.Message, ev mq.TaskEventPayload) error {
				if flowFilter != "" && ev.Flow != flowFilter {
					return nil
				}
				line := eventLine{
					Time:             msg.Timestamp.Local().Format(time.RFC3339Nano),
					TaskEventPayload: ev,
				}
				if out.JSONMode() {
					out.JSONLine(line)
					return nil
				}
				out.Line("%s  %-10s %-12s %-24s %s %d/%d %s",
					line.Time, ev.Flow, ev.Event, ev.Task, ev.State, ev.Completed, ev.Operations, ev.Error)
				return nil
			})

			err = mq.NewConsumer(conn, app.Logger, cfg).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Durable queue to consume (default: a temporary queue that leaves the audit queue intact)")
	cmd.Flags().StringVar(&flowFilter, "flow", "", "Only show events of this flow")

	return cmd
}
