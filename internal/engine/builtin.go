package engine

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shaiso/Taskflow/internal/composite"
	"github.com/shaiso/Taskflow/internal/leaf"
	"github.com/shaiso/Taskflow/internal/task"
)

// Ключи конфигурации встроенных шагов.
const (
	configOutput          = "output"
	configMessage         = "message"
	configRestartOnResume = "restart_on_resume"
	configMappings        = "mappings"
)

// buildNoop — шаг, сразу завершающийся с config.output.
func buildNoop(_ *BuildContext, _ string, step *StepDef, config map[string]any) (task.Task, error) {
	output := config[configOutput]
	return task.NewFunc(stepName(step), func() (any, error) {
		return output, nil
	}), nil
}

// buildFail — шаг, всегда завершающийся ошибкой config.message.
func buildFail(_ *BuildContext, _ string, step *StepDef, config map[string]any) (task.Task, error) {
	p := leaf.NewParams("fail", config)
	msg := p.String(configMessage)
	if err := p.Err(); err != nil {
		return nil, err
	}
	if msg == "" {
		msg = "step " + step.ID + " failed"
	}
	return task.NewFunc(stepName(step), func() (any, error) {
		return nil, &task.ExecutionError{Message: msg}
	}), nil
}

// buildDelay — пауза; остаток сохраняется при прерывании.
//
//	{"duration_ms": 500, "restart_on_resume": false}
func buildDelay(bc *BuildContext, _ string, step *StepDef, config map[string]any) (task.Task, error) {
	if bc.env.Clock == nil {
		return nil, ErrNoClock
	}
	d, err := leaf.ParseDelay(config)
	if err != nil {
		return nil, err
	}
	p := leaf.NewParams("delay", config)
	restart := p.Bool(configRestartOnResume, false)
	if err := p.Err(); err != nil {
		return nil, err
	}
	dl := leaf.NewDelay(stepName(step), d, bc.env.Clock)
	if restart {
		dl.RestartOnResume()
	}
	return dl, nil
}

// buildHTTP — HTTP запрос; ответ возвращается в цикл через Env.Poster.
func buildHTTP(bc *BuildContext, _ string, step *StepDef, config map[string]any) (task.Task, error) {
	if bc.env.Poster == nil {
		return nil, ErrNoPoster
	}
	cfg, err := leaf.ParseHTTPConfig(config, bc.env.HTTP)
	if err != nil {
		return nil, err
	}
	return leaf.NewHTTP(stepName(step), cfg, bc.env.Poster), nil
}

// buildTransform — шаг трансформации данных.
//
// Mappings рендерятся как шаблоны до запуска шага:
//
//	{
//	    "mappings": {
//	        "total": "{{ len .Steps.fetch.Outputs.body.items }}",
//	        "status": "{{ .Steps.fetch.Outputs.status_code }}"
//	    }
//	}
//
// Результат — map с результатами mappings; значения, похожие на JSON
// или числа, разбираются.
func buildTransform(_ *BuildContext, _ string, step *StepDef, config map[string]any) (task.Task, error) {
	p := leaf.NewParams("transform", config)
	mappings := p.StringMap(configMappings)
	if err := p.Err(); err != nil {
		return nil, err
	}
	return task.NewFunc(stepName(step), func() (any, error) {
		out := make(map[string]any, len(mappings))
		for key, value := range mappings {
			out[key] = parseValue(value)
		}
		return out, nil
	}), nil
}

// buildParallel — ветки выполняются параллельно, шаги ветки по порядку.
// Ошибка любой ветки прерывает остальные.
func buildParallel(bc *BuildContext, id string, step *StepDef, _ map[string]any) (task.Task, error) {
	branches, err := buildBranches(bc, id, step)
	if err != nil {
		return nil, err
	}
	c := composite.NewComposite(true, branches...)
	c.SetName(stepName(step))
	return c, nil
}

// buildFirstSuccess — ветки выполняются параллельно, первая успешная
// останавливает остальные.
func buildFirstSuccess(bc *BuildContext, id string, step *StepDef, _ map[string]any) (task.Task, error) {
	branches, err := buildBranches(bc, id, step)
	if err != nil {
		return nil, err
	}
	c := composite.NewStopOnSuccess(true, branches...)
	c.SetName(stepName(step))
	return c, nil
}

func buildBranches(bc *BuildContext, id string, step *StepDef) ([]task.Task, error) {
	if len(step.Branches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBranches, id)
	}
	out := make([]task.Task, 0, len(step.Branches))
	for i := range step.Branches {
		b, err := bc.BuildBranch(id, &step.Branches[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// parseValue пытается разобрать строку как JSON объект, массив, число
// или bool. Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	if value == "" {
		return value
	}

	switch value[0] {
	case '{', '[':
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			return parsed
		}
		return value
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
