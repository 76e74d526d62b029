package engine

import (
	"errors"
	"testing"
)

func TestValidate_EmptySteps(t *testing.T) {
	tests := []struct {
		name string
		spec *FlowSpec
	}{
		{
			name: "nil spec",
			spec: nil,
		},
		{
			name: "empty steps",
			spec: &FlowSpec{
				Steps: []StepDef{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if !errors.Is(err, ErrEmptySteps) {
				t.Errorf("expected ErrEmptySteps, got %v", err)
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    *FlowSpec
		want    error
		stepID  string
		wantVal bool
	}{
		{
			name: "empty step id",
			spec: &FlowSpec{Steps: []StepDef{{ID: "", Type: "noop"}}},
			want: ErrEmptyStepID, wantVal: true,
		},
		{
			name: "duplicate step id",
			spec: &FlowSpec{Steps: []StepDef{
				{ID: "a", Type: "noop"},
				{ID: "a", Type: "noop"},
			}},
			want: ErrDuplicateStepID, stepID: "a", wantVal: true,
		},
		{
			name: "empty type",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a"}}},
			want: ErrUnknownStepType, stepID: "a", wantVal: true,
		},
		{
			name: "unknown type",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "shell"}}},
			want: ErrUnknownStepType, stepID: "a", wantVal: true,
		},
		{
			name: "self dependency",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "noop", DependsOn: []string{"a"}}}},
			want: ErrSelfDependency, stepID: "a", wantVal: true,
		},
		{
			name: "missing dependency",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "noop", DependsOn: []string{"ghost"}}}},
			want: ErrMissingDependency, stepID: "a", wantVal: true,
		},
		{
			name: "cycle",
			spec: &FlowSpec{Steps: []StepDef{
				{ID: "a", Type: "noop", DependsOn: []string{"c"}},
				{ID: "b", Type: "noop", DependsOn: []string{"a"}},
				{ID: "c", Type: "noop", DependsOn: []string{"b"}},
			}},
			want: ErrCyclicDependency, wantVal: true,
		},
		{
			name: "both forms",
			spec: &FlowSpec{
				Steps:  []StepDef{{ID: "a", Type: "noop"}},
				Stages: []Stage{{Steps: []StepDef{{ID: "b", Type: "noop"}}}},
			},
			want: ErrBothForms, wantVal: true,
		},
		{
			name: "empty stage",
			spec: &FlowSpec{Stages: []Stage{{}}},
			want: ErrEmptyStage, wantVal: true,
		},
		{
			name: "dependency inside stage",
			spec: &FlowSpec{Stages: []Stage{{Steps: []StepDef{
				{ID: "a", Type: "noop"},
				{ID: "b", Type: "noop", DependsOn: []string{"a"}},
			}}}},
			want: ErrNestedDependency, stepID: "b", wantVal: true,
		},
		{
			name: "no branches",
			spec: &FlowSpec{Steps: []StepDef{{ID: "p", Type: "parallel"}}},
			want: ErrEmptyBranches, stepID: "p", wantVal: true,
		},
		{
			name: "empty branch id",
			spec: &FlowSpec{Steps: []StepDef{{ID: "p", Type: "parallel", Branches: []Branch{
				{Steps: []StepDef{{ID: "x", Type: "noop"}}},
			}}}},
			want: ErrEmptyBranchID, stepID: "p", wantVal: true,
		},
		{
			name: "duplicate branch id",
			spec: &FlowSpec{Steps: []StepDef{{ID: "p", Type: "first_success", Branches: []Branch{
				{ID: "b", Steps: []StepDef{{ID: "x", Type: "noop"}}},
				{ID: "b", Steps: []StepDef{{ID: "y", Type: "noop"}}},
			}}}},
			want: ErrDuplicateBranchID, stepID: "p", wantVal: true,
		},
		{
			name: "empty branch steps",
			spec: &FlowSpec{Steps: []StepDef{{ID: "p", Type: "parallel", Branches: []Branch{
				{ID: "b"},
			}}}},
			want: ErrEmptyBranchSteps, stepID: "p", wantVal: true,
		},
		{
			name: "dependency inside branch",
			spec: &FlowSpec{Steps: []StepDef{
				{ID: "a", Type: "noop"},
				{ID: "p", Type: "parallel", Branches: []Branch{
					{ID: "b", Steps: []StepDef{{ID: "x", Type: "noop", DependsOn: []string{"a"}}}},
				}},
			}},
			want: ErrNestedDependency, stepID: "p.b.x", wantVal: true,
		},
		{
			name: "negative retries",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "noop", Retry: &RetryPolicy{MaxRetries: -1}}}},
			want: ErrInvalidRetry, stepID: "a", wantVal: true,
		},
		{
			name: "unknown backoff in defaults",
			spec: &FlowSpec{
				Defaults: &StepDefaults{Retry: &RetryPolicy{MaxRetries: 1, Backoff: "random"}},
				Steps:    []StepDef{{ID: "a", Type: "noop"}},
			},
			want: ErrInvalidRetry, wantVal: true,
		},
		{
			name: "broken config template",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "noop", Config: map[string]any{
				"output": "{{ .Inputs.x",
			}}}},
			want: ErrTemplateParse, stepID: "a", wantVal: true,
		},
		{
			name: "broken condition",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "noop", Condition: "eq .Inputs.x ("}}},
			want: ErrTemplateParse, stepID: "a", wantVal: true,
		},
		{
			name: "condition on branch step",
			spec: &FlowSpec{Steps: []StepDef{{ID: "p", Type: "parallel", Condition: ".Inputs.x", Branches: []Branch{
				{ID: "b", Steps: []StepDef{{ID: "x", Type: "noop"}}},
			}}}},
			want: ErrInvalidSpec, stepID: "p", wantVal: true,
		},
		{
			name: "duplicate fallback id",
			spec: &FlowSpec{Steps: []StepDef{{ID: "a", Type: "fail", Fallback: []StepDef{
				{ID: "f", Type: "noop"},
				{ID: "f", Type: "noop"},
			}}}},
			want: ErrDuplicateStepID, stepID: "a.fallback.f", wantVal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			var vErr *ValidationError
			if tt.wantVal && !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if vErr != nil && vErr.StepID != tt.stepID {
				t.Errorf("expected step ID %q, got %q", tt.stepID, vErr.StepID)
			}
		})
	}
}

func TestValidate_ValidSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec *FlowSpec
	}{
		{
			name: "graph",
			spec: &FlowSpec{Steps: []StepDef{
				{ID: "a", Type: "noop"},
				{ID: "b", Type: "delay", DependsOn: []string{"a"}, Config: map[string]any{"duration_ms": 10}},
				{ID: "c", Type: "noop", DependsOn: []string{"a", "b"}},
			}},
		},
		{
			name: "stages with fallback",
			spec: &FlowSpec{Stages: []Stage{
				{Steps: []StepDef{{ID: "a", Type: "noop"}, {ID: "b", Type: "noop"}}},
				{Steps: []StepDef{{ID: "c", Type: "fail"}}, Fallback: []StepDef{{ID: "d", Type: "noop"}}},
			}},
		},
		{
			name: "same step id in different branches",
			spec: &FlowSpec{Steps: []StepDef{{ID: "p", Type: "parallel", Branches: []Branch{
				{ID: "one", Steps: []StepDef{{ID: "x", Type: "noop"}}},
				{ID: "two", Steps: []StepDef{{ID: "x", Type: "noop"}}},
			}}}},
		},
		{
			name: "templates",
			spec: &FlowSpec{Steps: []StepDef{
				{ID: "a", Type: "noop"},
				{ID: "b", Type: "transform", DependsOn: []string{"a"}, Condition: ".Inputs.enabled", Config: map[string]any{
					"mappings": map[string]any{"x": "{{ .Steps.a.Status }}"},
				}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.spec); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateWith_CustomRegistry(t *testing.T) {
	spec := &FlowSpec{Steps: []StepDef{{ID: "a", Type: "noop"}}}

	reg := DefaultRegistry()
	reg.Unregister(StepTypeNoop)

	err := ValidateWith(spec, reg)
	if !errors.Is(err, ErrUnknownStepType) {
		t.Fatalf("expected ErrUnknownStepType, got %v", err)
	}
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(`{
		"name": "deploy",
		"defaults": {"retry": {"max_retries": 2, "delay_ms": 100}, "timeout_ms": 5000},
		"steps": [
			{"id": "build", "type": "noop"},
			{"id": "ship", "type": "delay", "depends_on": ["build"], "config": {"duration_ms": 50}}
		]
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Name != "deploy" {
		t.Errorf("expected name deploy, got %q", spec.Name)
	}
	if spec.Defaults == nil || spec.Defaults.Retry.MaxRetries != 2 || spec.Defaults.TimeoutMs != 5000 {
		t.Errorf("unexpected defaults: %+v", spec.Defaults)
	}
	if len(spec.Steps) != 2 || spec.Steps[1].DependsOn[0] != "build" {
		t.Errorf("unexpected steps: %+v", spec.Steps)
	}

	if _, err := ParseSpec([]byte(`{"steps": [`)); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
	if _, err := ParseSpec([]byte(`{"steps": []}`)); !errors.Is(err, ErrEmptySteps) {
		t.Errorf("expected ErrEmptySteps, got %v", err)
	}
}

func TestResolveInputs(t *testing.T) {
	spec := &FlowSpec{Inputs: map[string]InputDef{
		"env":    {Type: "string", Default: "dev"},
		"target": {Type: "string", Required: true},
		"note":   {Type: "string"},
	}}

	got, err := spec.ResolveInputs(map[string]any{"target": "eu"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["env"] != "dev" || got["target"] != "eu" {
		t.Errorf("unexpected inputs: %v", got)
	}
	if _, ok := got["note"]; ok {
		t.Error("optional input without default should be absent")
	}

	if _, err := spec.ResolveInputs(nil); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}
