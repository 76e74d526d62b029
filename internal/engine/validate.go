package engine

import "fmt"

// Validate выполняет полную валидацию FlowSpec со стандартным реестром.
func Validate(spec *FlowSpec) error {
	return ValidateWith(spec, DefaultRegistry())
}

// ValidateWith выполняет полную валидацию FlowSpec.
//
// Проверяет:
// - Наличие шагов и ровно одну форму (steps или stages)
// - Уникальность ID шагов (включая ветки и fallback)
// - Известность типов шагов
// - Валидность зависимостей (depends_on) и отсутствие циклов
// - Валидность веток
// - Разбор шаблонов в condition и config
func ValidateWith(spec *FlowSpec, reg *Registry) error {
	if spec == nil {
		return ErrEmptySteps
	}
	if len(spec.Steps) > 0 && len(spec.Stages) > 0 {
		return NewValidationError("", "stages", "flow spec has both steps and stages", ErrBothForms)
	}
	if len(spec.Steps) == 0 && len(spec.Stages) == 0 {
		return ErrEmptySteps
	}
	if spec.Defaults != nil {
		if err := validateRetry("", spec.Defaults.Retry); err != nil {
			return err
		}
	}

	v := &validator{reg: reg, ids: make(map[string]bool)}

	if spec.IsStaged() {
		for i, stage := range spec.Stages {
			if len(stage.Steps) == 0 {
				return NewValidationError("", "stages",
					fmt.Sprintf("stage %d has no steps", i), ErrEmptyStage)
			}
			for j := range stage.Steps {
				if err := v.step(stage.Steps[j].ID, &stage.Steps[j], false); err != nil {
					return err
				}
			}
			for j := range stage.Fallback {
				if err := v.step(stage.Fallback[j].ID, &stage.Fallback[j], false); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for i := range spec.Steps {
		if err := v.step(spec.Steps[i].ID, &spec.Steps[i], true); err != nil {
			return err
		}
	}

	// Зависимости и циклы проверяет планирование порядка шагов
	_, err := planSteps(spec)
	return err
}

type validator struct {
	reg *Registry
	ids map[string]bool
}

// step валидирует один шаг. id — полный ID шага (с префиксом для
// вложенных шагов).
func (v *validator) step(id string, step *StepDef, allowDeps bool) error {
	if step.ID == "" {
		return NewValidationError("", "id", "step has empty ID", ErrEmptyStepID)
	}

	if v.ids[id] {
		return NewValidationError(id, "id",
			fmt.Sprintf("duplicate step ID: %s", id), ErrDuplicateStepID)
	}
	v.ids[id] = true

	st, err := v.stepType(id, step.Type)
	if err != nil {
		return err
	}

	for _, dep := range step.DependsOn {
		if dep == step.ID {
			return NewValidationError(id, "depends_on",
				"step depends on itself", ErrSelfDependency)
		}
	}
	if !allowDeps && len(step.DependsOn) > 0 {
		return NewValidationError(id, "depends_on",
			"depends_on is only allowed on top-level steps", ErrNestedDependency)
	}

	if err := validateRetry(id, step.Retry); err != nil {
		return err
	}

	if step.Condition != "" {
		if st.Branches {
			return NewValidationError(id, "condition",
				"condition is not supported for branch steps", ErrInvalidSpec)
		}
		if _, err := parseTemplate(conditionTemplate(step.Condition)); err != nil {
			return NewValidationError(id, "condition", err.Error(), ErrTemplateParse)
		}
	}
	if err := checkTemplates(step.Config); err != nil {
		return NewValidationError(id, "config", err.Error(), ErrTemplateParse)
	}

	if st.Branches {
		if err := v.branches(id, step); err != nil {
			return err
		}
	}

	for i := range step.Fallback {
		fb := &step.Fallback[i]
		if err := v.step(fallbackID(id, fb.ID), fb, false); err != nil {
			return err
		}
	}
	return nil
}

// stepType проверяет, что тип шага известен.
func (v *validator) stepType(stepID, stepType string) (StepType, error) {
	if stepType == "" {
		return StepType{}, NewValidationError(stepID, "type",
			"step has empty type", ErrUnknownStepType)
	}

	st, err := v.reg.Get(stepType)
	if err != nil {
		return StepType{}, NewValidationError(stepID, "type",
			fmt.Sprintf("unknown step type: %s", stepType), ErrUnknownStepType)
	}
	return st, nil
}

// branches валидирует ветки шага.
// ID шагов в ветках получают префикс: {step_id}.{branch_id}.{id}
func (v *validator) branches(id string, step *StepDef) error {
	if len(step.Branches) == 0 {
		return NewValidationError(id, "branches",
			"step has no branches", ErrEmptyBranches)
	}

	branchIDs := make(map[string]bool)

	for i := range step.Branches {
		branch := &step.Branches[i]

		if branch.ID == "" {
			return NewValidationError(id, "branches",
				fmt.Sprintf("branch %d has empty ID", i), ErrEmptyBranchID)
		}

		if branchIDs[branch.ID] {
			return NewValidationError(id, "branches",
				fmt.Sprintf("duplicate branch ID: %s", branch.ID), ErrDuplicateBranchID)
		}
		branchIDs[branch.ID] = true

		if len(branch.Steps) == 0 {
			return NewValidationError(id, "branches",
				fmt.Sprintf("branch %s has no steps", branch.ID), ErrEmptyBranchSteps)
		}

		for j := range branch.Steps {
			bs := &branch.Steps[j]
			if err := v.step(branchStepID(id, branch.ID, bs.ID), bs, false); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateRetry(stepID string, p *RetryPolicy) error {
	if p == nil {
		return nil
	}
	if p.MaxRetries < 0 {
		return NewValidationError(stepID, "retry",
			"max_retries must not be negative", ErrInvalidRetry)
	}
	switch p.Backoff {
	case "", BackoffFixed, BackoffExponential:
	default:
		return NewValidationError(stepID, "retry",
			fmt.Sprintf("unknown backoff: %s", p.Backoff), ErrInvalidRetry)
	}
	return nil
}

func branchStepID(stepID, branchID, id string) string {
	return stepID + "." + branchID + "." + id
}

func fallbackID(stepID, id string) string {
	return stepID + ".fallback." + id
}
