package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/shaiso/Taskflow/internal/task"
)

// Context — данные, доступные шаблонам шага:
//
//	{{ .Inputs.name }}
//	{{ .Env.region }}
//	{{ .Steps.fetch.Outputs.body }}  {{ .Steps.fetch.Status }}  {{ .Steps.fetch.Error }}
//
// Steps содержит только завершённые шаги (COMPLETED или ERRORED).
type Context struct {
	Inputs map[string]any        `json:"inputs"`
	Env    map[string]string     `json:"env"`
	Steps  map[string]StepResult `json:"steps"`
}

// StepResult — итог шага. Status — имя состояния задачи.
type StepResult struct {
	Status  string         `json:"status"`
	Outputs map[string]any `json:"outputs"`
	Error   string         `json:"error,omitempty"`
}

// NewContext создаёт пустой контекст с входными параметрами.
func NewContext(inputs map[string]any) *Context {
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return &Context{
		Inputs: inputs,
		Env:    make(map[string]string),
		Steps:  make(map[string]StepResult),
	}
}

// contextFromSteps собирает контекст по текущему состоянию задач.
func contextFromSteps(inputs map[string]any, vars map[string]string, steps map[string]task.Task) *Context {
	ctx := NewContext(inputs)
	for k, v := range vars {
		ctx.Env[k] = v
	}
	for id, t := range steps {
		switch st := t.State(); st {
		case task.StateCompleted, task.StateErrored:
			ctx.Steps[id] = StepResult{
				Status:  st.String(),
				Outputs: outputs(t.Data()),
				Error:   t.ErrorMessage(),
			}
		}
	}
	return ctx
}

// outputs приводит данные задачи к виду .Steps.<id>.Outputs.
// Не-map данные доступны как .Outputs.value.
func outputs(data any) map[string]any {
	switch v := data.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	default:
		return map[string]any{"value": v}
	}
}

// templateFuncs — функции, доступные в шаблонах.
var templateFuncs = template.FuncMap{
	"json":     toJSON,
	"toJSON":   toJSON,
	"fromJSON": fromJSON,
	"default": func(def, val any) any {
		if isEmpty(val) {
			return def
		}
		return val
	},
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if !isEmpty(v) {
				return v
			}
		}
		return nil
	},
	"join":     join,
	"split":    func(sep, s string) []string { return strings.Split(s, sep) },
	"contains": strings.Contains,
	"lower":    strings.ToLower,
	"upper":    strings.ToUpper,
	"trim":     strings.TrimSpace,
	"replace":  strings.ReplaceAll,
	"keys":     keys,
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fromJSON(s string) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// join принимает []string или []any (массивы из JSON).
func join(sep string, items any) (string, error) {
	switch v := items.(type) {
	case []string:
		return strings.Join(v, sep), nil
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep), nil
	default:
		return "", fmt.Errorf("join: expected list, got %T", items)
	}
}

// keys возвращает отсортированные ключи map.
func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

func parseTemplate(text string) (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
}

// Render выполняет шаблон. Строка без {{ возвращается как есть.
func Render(text string, ctx *Context) (string, error) {
	if !isTemplate(text) {
		return text, nil
	}
	t, err := parseTemplate(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// RenderValue рендерит все строки внутри value. Остальные значения
// копируются без изменений.
func RenderValue(value any, ctx *Context) (any, error) {
	return walkStrings(value, func(s string) (string, error) {
		return Render(s, ctx)
	})
}

// RenderConfig рендерит конфигурацию шага. nil даёт пустую map.
func RenderConfig(config map[string]any, ctx *Context) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}
	rendered, err := RenderValue(config, ctx)
	if err != nil {
		return nil, err
	}
	return rendered.(map[string]any), nil
}

// RenderCondition вычисляет условие шага. Условие пишется как тело
// {{if}}: `eq .Inputs.env "prod"`, скобки {{ }} допускаются.
// Пустое условие истинно.
func RenderCondition(condition string, ctx *Context) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}
	out, err := Render(conditionTemplate(condition), ctx)
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

func conditionTemplate(condition string) string {
	c := strings.TrimSpace(condition)
	c = strings.TrimPrefix(c, "{{")
	c = strings.TrimSuffix(c, "}}")
	return "{{if " + strings.TrimSpace(c) + "}}true{{else}}false{{end}}"
}

// hasTemplate сообщает, есть ли шаблон хотя бы в одной строке value.
func hasTemplate(value any) bool {
	found := false
	_, _ = walkStrings(value, func(s string) (string, error) {
		found = found || isTemplate(s)
		return s, nil
	})
	return found
}

// checkTemplates разбирает все шаблоны в value без выполнения.
func checkTemplates(value any) error {
	_, err := walkStrings(value, func(s string) (string, error) {
		if isTemplate(s) {
			if _, err := parseTemplate(s); err != nil {
				return "", err
			}
		}
		return s, nil
	})
	return err
}

// walkStrings копирует value, применяя fn к каждой строке в map и slice.
func walkStrings(value any, fn func(string) (string, error)) (any, error) {
	switch v := value.(type) {
	case string:
		return fn(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := walkStrings(item, fn)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := walkStrings(item, fn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			r, err := fn(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			r, err := fn(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}
