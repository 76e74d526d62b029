package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации FlowSpec.
var (
	ErrInvalidSpec       = errors.New("invalid flow spec")
	ErrEmptySteps        = errors.New("flow spec has no steps")
	ErrBothForms         = errors.New("flow spec has both steps and stages")
	ErrEmptyStepID       = errors.New("step has empty ID")
	ErrDuplicateStepID   = errors.New("duplicate step ID")
	ErrUnknownStepType   = errors.New("unknown step type")
	ErrMissingDependency = errors.New("step depends on unknown step")
	ErrCyclicDependency  = errors.New("cyclic dependency detected")
	ErrSelfDependency    = errors.New("step depends on itself")
	ErrEmptyStage        = errors.New("stage has no steps")
	ErrInvalidRetry      = errors.New("invalid retry policy")
	ErrMissingInput      = errors.New("missing required input")

	// ErrNestedDependency — depends_on внутри ветки, fallback или стадии.
	ErrNestedDependency = errors.New("depends_on is only allowed on top-level steps")
)

// Ошибки шаблонов: Parse при разборе, Render при выполнении.
var (
	ErrTemplateParse  = errors.New("template parse failed")
	ErrTemplateRender = errors.New("template render failed")
)

// Ошибки веток parallel и first_success.
var (
	ErrEmptyBranches     = errors.New("step has no branches")
	ErrEmptyBranchID     = errors.New("branch has empty ID")
	ErrDuplicateBranchID = errors.New("duplicate branch ID")
	ErrEmptyBranchSteps  = errors.New("branch has no steps")
)

// ValidationError — ошибка в конкретном шаге или поле спецификации.
// Err — одна из sentinel ошибок пакета, её проверяют через errors.Is.
type ValidationError struct {
	StepID  string
	Field   string
	Message string
	Err     error
}

// Error форматирует ошибку как "step <id>: <field>: <message>".
func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.StepID != "" {
		b.WriteString("step " + e.StepID + ": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field + ": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт ValidationError.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{StepID: stepID, Field: field, Message: message, Err: err}
}
