package engine

import (
	"fmt"
	"strings"
)

// stepPlan — порядок построения шагов верхнего уровня формы steps.
//
// Шаги веток и fallback сюда не входят: они строятся внутри задачи
// своего шага.
type stepPlan struct {
	steps   map[string]*StepDef
	prereqs map[string][]string
	order   []string
}

// planSteps проверяет зависимости и упорядочивает шаги так, что каждый
// шаг идёт после своих зависимостей. Из готовых шагов первым берётся
// объявленный раньше, поэтому порядок не зависит от map.
func planSteps(spec *FlowSpec) (*stepPlan, error) {
	p := &stepPlan{
		steps:   make(map[string]*StepDef, len(spec.Steps)),
		prereqs: make(map[string][]string, len(spec.Steps)),
	}
	for i := range spec.Steps {
		p.steps[spec.Steps[i].ID] = &spec.Steps[i]
	}

	for i := range spec.Steps {
		step := &spec.Steps[i]
		seen := make(map[string]bool, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if _, ok := p.steps[dep]; !ok {
				return nil, NewValidationError(step.ID, "depends_on",
					fmt.Sprintf("depends on unknown step: %s", dep), ErrMissingDependency)
			}
			if !seen[dep] {
				seen[dep] = true
				p.prereqs[step.ID] = append(p.prereqs[step.ID], dep)
			}
		}
	}

	placed := make(map[string]bool, len(spec.Steps))
	for len(p.order) < len(spec.Steps) {
		next := ""
		for i := range spec.Steps {
			id := spec.Steps[i].ID
			if !placed[id] && p.ready(id, placed) {
				next = id
				break
			}
		}
		if next == "" {
			return nil, p.cycleError(spec, placed)
		}
		placed[next] = true
		p.order = append(p.order, next)
	}
	return p, nil
}

func (p *stepPlan) ready(id string, placed map[string]bool) bool {
	for _, dep := range p.prereqs[id] {
		if !placed[dep] {
			return false
		}
	}
	return true
}

func (p *stepPlan) cycleError(spec *FlowSpec, placed map[string]bool) error {
	var stuck []string
	for i := range spec.Steps {
		if id := spec.Steps[i].ID; !placed[id] {
			stuck = append(stuck, id)
		}
	}
	return NewValidationError("", "depends_on",
		"cyclic dependency between steps "+strings.Join(stuck, ", "), ErrCyclicDependency)
}
