package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Taskflow/internal/config"
	"github.com/shaiso/Taskflow/internal/telemetry"
)

// App — загруженная конфигурация, логгер и вывод одной команды.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Out    *Output
}

// NewApp загружает конфигурацию и настраивает логгер по умолчанию.
func NewApp(configPath string, jsonMode bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	return &App{
		Config: cfg,
		Logger: logger,
		Out:    NewOutput(jsonMode),
	}, nil
}

// parseInputs разбирает значения --input KEY=VALUE.
// VALUE в виде JSON (числа, true, объекты) декодируется, иначе остаётся строкой.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	inputs := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}

		var value any
		if err := json.Unmarshal([]byte(parts[1]), &value); err != nil {
			value = parts[1]
		}
		inputs[parts[0]] = value
	}
	return inputs, nil
}
