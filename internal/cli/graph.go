package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/engine"
)

// NewGraphCmd создаёт команду экспорта flow в Graphviz DOT.
func NewGraphCmd(appFn func() (*App, error)) *cobra.Command {
	var name string
	var rankDir string

	cmd := &cobra.Command{
		Use:     "graph FLOW",
		Short:   "Print the flow dependency graph in DOT format",
		Example: `  taskflow graph deploy.json | dot -Tsvg > deploy.svg`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
			if err != nil {
				return err
			}

			spec, err := engine.LoadSpec(args[0])
			if err != nil {
				return err
			}

			return engine.ExportDOT(app.Out.Writer(), spec,
				engine.DOTWithGraphName(name),
				engine.DOTWithRankDir(rankDir),
			)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Graph name (defaults to the flow name)")
	cmd.Flags().StringVar(&rankDir, "rankdir", "LR", "Graph direction: LR, TB, RL, BT")

	return cmd
}
