package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/engine"
)

// validateResult — результат проверки одного файла.
type validateResult struct {
	File  string `json:"file"`
	Flow  string `json:"flow,omitempty"`
	Steps int    `json:"steps,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCmd создаёт команду проверки flow файлов.
func NewValidateCmd(appFn func() (*App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FLOW...",
		Short: "Validate flow files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFn()
			if err != nil {
				return err
			}

			results := make([]validateResult, 0, len(args))
			invalid := 0
			for _, path := range args {
				res := validateFile(path)
				if !res.Valid {
					invalid++
				}
				results = append(results, res)
			}

			rows := make([][]string, len(results))
			for i, r := range results {
				status := "ok"
				if !r.Valid {
					status = "invalid"
				}
				rows[i] = []string{r.File, r.Flow, status, r.Error}
			}
			app.Out.Print([]string{"FILE", "FLOW", "STATUS", "ERROR"}, rows, results)

			if invalid > 0 {
				return fmt.Errorf("%d of %d flow files are invalid", invalid, len(args))
			}
			return nil
		},
	}
}

func validateFile(path string) validateResult {
	spec, err := engine.LoadSpec(path)
	if err != nil {
		return validateResult{File: path, Error: err.Error()}
	}
	steps := len(spec.Steps)
	for _, stage := range spec.Stages {
		steps += len(stage.Steps) + len(stage.Fallback)
	}
	return validateResult{
		File:  path,
		Flow:  spec.Name,
		Steps: steps,
		Valid: true,
	}
}
