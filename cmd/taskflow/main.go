// Taskflow CLI — запуск декларативных flow из задач с графом
// зависимостей, retry, таймаутами и fallback.
//
// Использование:
//
//	taskflow [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить flow (--watch — перезапуск при изменении файла)
//	validate  Проверить flow файлы
//	graph     Граф шагов в формате DOT
//	schedule  Запуск по cron-расписанию с /metrics
//	events    События задач из RabbitMQ
//	runs      История запусков
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Taskflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Taskflow — run task graphs declared in JSON",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (TOML); defaults to $TASKFLOW_CONFIG")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	var app *cli.App
	appFn := func() (*cli.App, error) {
		if app != nil {
			return app, nil
		}
		a, err := cli.NewApp(configPath, jsonOutput)
		if err != nil {
			return nil, err
		}
		app = a
		return app, nil
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(appFn),
		cli.NewValidateCmd(appFn),
		cli.NewGraphCmd(appFn),
		cli.NewScheduleCmd(appFn),
		cli.NewEventsCmd(appFn),
		cli.NewRunsCmd(appFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
