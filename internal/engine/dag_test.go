package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestPlanSteps_Order(t *testing.T) {
	tests := []struct {
		name    string
		steps   []StepDef
		order   []string
		prereqs map[string][]string
	}{
		{
			name: "chain",
			steps: []StepDef{
				{ID: "A", Type: "http"},
				{ID: "B", Type: "delay", DependsOn: []string{"A"}},
				{ID: "C", Type: "noop", DependsOn: []string{"B"}},
			},
			order:   []string{"A", "B", "C"},
			prereqs: map[string][]string{"B": {"A"}, "C": {"B"}},
		},
		{
			name: "diamond declared backwards",
			steps: []StepDef{
				{ID: "D", Type: "noop", DependsOn: []string{"B", "C"}},
				{ID: "B", Type: "noop", DependsOn: []string{"A"}},
				{ID: "C", Type: "noop", DependsOn: []string{"A"}},
				{ID: "A", Type: "noop"},
			},
			order:   []string{"A", "B", "C", "D"},
			prereqs: map[string][]string{"B": {"A"}, "C": {"A"}, "D": {"B", "C"}},
		},
		{
			name: "independent steps keep declaration order",
			steps: []StepDef{
				{ID: "x", Type: "noop"},
				{ID: "y", Type: "noop"},
				{ID: "z", Type: "noop"},
			},
			order:   []string{"x", "y", "z"},
			prereqs: map[string][]string{},
		},
		{
			name: "duplicate dependency",
			steps: []StepDef{
				{ID: "A", Type: "noop"},
				{ID: "B", Type: "noop", DependsOn: []string{"A", "A"}},
			},
			order:   []string{"A", "B"},
			prereqs: map[string][]string{"B": {"A"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planSteps(&FlowSpec{Steps: tt.steps})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(plan.order, tt.order) {
				t.Errorf("order = %v, want %v", plan.order, tt.order)
			}
			if !reflect.DeepEqual(plan.prereqs, tt.prereqs) {
				t.Errorf("prereqs = %v, want %v", plan.prereqs, tt.prereqs)
			}
			for _, id := range tt.order {
				if plan.steps[id] == nil || plan.steps[id].ID != id {
					t.Errorf("step %s missing from plan", id)
				}
			}
		})
	}
}

func TestPlanSteps_Cycle(t *testing.T) {
	spec := &FlowSpec{
		Steps: []StepDef{
			{ID: "root", Type: "noop"},
			{ID: "A", Type: "noop", DependsOn: []string{"root", "B"}},
			{ID: "B", Type: "noop", DependsOn: []string{"A"}},
		},
	}

	_, err := planSteps(spec)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
	if !strings.Contains(err.Error(), "A, B") {
		t.Errorf("error should name the steps in the cycle: %v", err)
	}
}

func TestPlanSteps_MissingDependency(t *testing.T) {
	spec := &FlowSpec{
		Steps: []StepDef{
			{ID: "A", Type: "noop", DependsOn: []string{"ghost"}},
		},
	}

	_, err := planSteps(spec)
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.StepID != "A" || ve.Field != "depends_on" {
		t.Errorf("unexpected location: step=%q field=%q", ve.StepID, ve.Field)
	}
	if !strings.Contains(ve.Message, "ghost") {
		t.Errorf("message should name the unknown step: %q", ve.Message)
	}
}
