package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// FlowSpec — декларативное описание flow.
//
// Задаётся ровно одна из форм:
//   - Steps  — граф шагов с depends_on (выполняется через graph.Graph)
//   - Stages — последовательность стадий с fallback (graph.Chain)
type FlowSpec struct {
	// Version — версия формата спецификации.
	Version string `json:"version,omitempty"`

	// Name — имя flow.
	Name string `json:"name,omitempty"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// Inputs — входные параметры flow, доступные в шаблонах как .Inputs.
	Inputs map[string]InputDef `json:"inputs,omitempty"`

	// Defaults — настройки по умолчанию для всех шагов.
	Defaults *StepDefaults `json:"defaults,omitempty"`

	// Steps — шаги в форме графа.
	Steps []StepDef `json:"steps,omitempty"`

	// Stages — стадии в форме цепочки.
	Stages []Stage `json:"stages,omitempty"`
}

// InputDef — определение входного параметра.
type InputDef struct {
	// Type — тип параметра: "string", "number", "boolean", "object".
	Type string `json:"type,omitempty"`

	// Required — обязательный ли параметр.
	Required bool `json:"required,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`

	// Description — описание параметра.
	Description string `json:"description,omitempty"`
}

// StepDefaults — настройки по умолчанию для шагов.
type StepDefaults struct {
	Retry     *RetryPolicy `json:"retry,omitempty"`
	TimeoutMs int          `json:"timeout_ms,omitempty"`
	Failsafe  bool         `json:"failsafe,omitempty"`
}

// StepDef — определение шага.
type StepDef struct {
	// ID — уникальный идентификатор шага в рамках flow.
	ID string `json:"id"`

	// Name — человекочитаемое имя шага (по умолчанию ID).
	Name string `json:"name,omitempty"`

	// Type — тип шага из реестра: "noop", "fail", "delay", "http",
	// "transform", "parallel", "first_success".
	Type string `json:"type"`

	// DependsOn — шаги, после успеха которых запускается этот шаг.
	// Только для формы Steps.
	DependsOn []string `json:"depends_on,omitempty"`

	// Condition — Go template выражение; если ложно, шаг завершается
	// успешно без выполнения.
	Condition string `json:"condition,omitempty"`

	// Config — конфигурация шага (зависит от типа). Строки могут
	// содержать шаблоны ({{ .Steps.fetch.Outputs.body }}).
	Config map[string]any `json:"config,omitempty"`

	// Retry переопределяет defaults.retry.
	Retry *RetryPolicy `json:"retry,omitempty"`

	// TimeoutMs переопределяет defaults.timeout_ms.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// Failsafe — ошибка шага не роняет flow.
	Failsafe *bool `json:"failsafe,omitempty"`

	// Fallback — альтернативы, которые пробуются по порядку после ошибки шага.
	Fallback []StepDef `json:"fallback,omitempty"`

	// Branches — ветки для "parallel" и "first_success".
	Branches []Branch `json:"branches,omitempty"`
}

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// MaxRetries — количество повторов после первой попытки.
	MaxRetries int `json:"max_retries"`

	// DelayMs — задержка перед повтором; отрицательная — повтор сразу.
	DelayMs int `json:"delay_ms,omitempty"`

	// Backoff — "fixed" (по умолчанию) или "exponential".
	Backoff string `json:"backoff,omitempty"`

	// MaxDelayMs — потолок задержки для exponential.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// Стратегии backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Branch — ветка: шаги выполняются последовательно.
type Branch struct {
	ID    string    `json:"id"`
	Steps []StepDef `json:"steps"`
}

// Stage — стадия цепочки: шаги выполняются параллельно, fallback
// пробуется по порядку после ошибки стадии.
type Stage struct {
	Steps    []StepDef `json:"steps"`
	Fallback []StepDef `json:"fallback,omitempty"`
}

// ParseSpec разбирает FlowSpec из JSON и валидирует её.
func ParseSpec(data []byte) (*FlowSpec, error) {
	var spec FlowSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := Validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadSpec читает и разбирает FlowSpec из файла.
func LoadSpec(path string) (*FlowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow spec: %w", err)
	}
	return ParseSpec(data)
}

// IsStaged сообщает, задана ли flow в форме стадий.
func (s *FlowSpec) IsStaged() bool {
	return len(s.Stages) > 0
}

// ResolveInputs объединяет переданные значения со значениями по умолчанию.
// Отсутствующий обязательный параметр — ошибка.
func (s *FlowSpec) ResolveInputs(provided map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s.Inputs)+len(provided))
	for k, v := range provided {
		out[k] = v
	}
	for name, def := range s.Inputs {
		if _, ok := out[name]; ok {
			continue
		}
		if def.Default != nil {
			out[name] = def.Default
			continue
		}
		if def.Required {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
	}
	return out, nil
}
