package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/repo"
)

// NewRunsCmd создаёт группу команд истории запусков.
//
// История читается из хранилища store.url, даже если запись при
// запуске выключена.
func NewRunsCmd(appFn func() (*App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}

	cmd.AddCommand(
		newRunsListCmd(appFn),
		newRunsShowCmd(appFn),
	)

	return cmd
}

func openStore(ctx context.Context, app *App) (repo.Store, error) {
	store, err := repo.Open(ctx, app.Config.Store.URL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func newRunsListCmd(appFn func() (*App, error)) *cobra.Command {
	var flow string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), repo.ListFilter{Flow: flow, Limit: limit})
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLOW", "SOURCE", "STATE", "PROGRESS", "STARTED", "DURATION"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					r.Flow,
					r.Source,
					r.State,
					strconv.Itoa(r.Completed) + "/" + strconv.Itoa(r.Operations),
					r.StartedAt.Local().Format(time.DateTime),
					formatDuration(&r),
				}
			}

			app.Out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&flow, "flow", "", "Filter by flow name")
	cmd.Flags().IntVar(&limit, "limit", repo.DefaultListLimit, "Maximum number of results")

	return cmd
}

func newRunsShowCmd(appFn func() (*App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			store, err := openStore(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			app.Out.Print(
				[]string{"ID", "FLOW", "STATE", "ERROR", "DURATION", "DATA"},
				[][]string{{r.ID.String(), r.Flow, r.State, r.Error, formatDuration(r), compactJSON(r.Data)}},
				r,
			)
			return nil
		},
	}
}

func formatDuration(r *repo.RunRecord) string {
	if !r.IsFinished() {
		return "-"
	}
	return r.Duration().Round(time.Millisecond).String()
}
