package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/decorator"
	"github.com/shaiso/Taskflow/internal/graph"
	"github.com/shaiso/Taskflow/internal/task"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func mustParse(t *testing.T, data string) *FlowSpec {
	t.Helper()
	spec, err := ParseSpec([]byte(data))
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	return spec
}

func mustBuild(t *testing.T, spec *FlowSpec, env Env, opts ...Option) *Flow {
	t.Helper()
	flow, err := Build(spec, env, opts...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return flow
}

func TestBuild_GraphCompletes(t *testing.T) {
	spec := mustParse(t, `{
		"name": "diamond",
		"steps": [
			{"id": "a", "type": "noop", "config": {"output": "a"}},
			{"id": "b", "type": "noop", "depends_on": ["a"]},
			{"id": "c", "type": "noop", "depends_on": ["a"]},
			{"id": "d", "type": "noop", "depends_on": ["b", "c"], "config": {"output": "d"}}
		]
	}`)

	flow := mustBuild(t, spec, Env{Clock: clock.NewFake(epoch)})

	g, ok := flow.Root.(*graph.Graph)
	if !ok {
		t.Fatalf("expected *graph.Graph root, got %T", flow.Root)
	}
	if g.Len() != 4 {
		t.Errorf("expected 4 nodes, got %d", g.Len())
	}
	if flow.Root.Name() != "diamond" {
		t.Errorf("expected root name diamond, got %q", flow.Root.Name())
	}

	d, _ := flow.Step("d")
	prereqs := g.Prerequisites(d)
	if len(prereqs) != 2 {
		t.Errorf("expected d to have 2 prerequisites, got %d", len(prereqs))
	}

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Root.State() != task.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", flow.Root.State(), flow.Root.Err())
	}
	if d.Data() != "d" {
		t.Errorf("expected d data %q, got %v", "d", d.Data())
	}
	if flow.Root.OperationsCount() != 4 || flow.Root.CompletedOperationsCount() != 4 {
		t.Errorf("unexpected progress %d/%d", flow.Root.CompletedOperationsCount(), flow.Root.OperationsCount())
	}
}

func TestBuild_RetryWithDelay(t *testing.T) {
	spec := mustParse(t, `{
		"steps": [
			{"id": "flaky", "type": "fail", "config": {"message": "boom"},
			 "retry": {"max_retries": 2, "delay_ms": 100}}
		]
	}`)

	fake := clock.NewFake(epoch)
	flow := mustBuild(t, spec, Env{Clock: fake})

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	step, _ := flow.Step("flaky")
	retry, ok := step.(*decorator.Retry)
	if !ok {
		t.Fatalf("expected *decorator.Retry, got %T", step)
	}
	if retry.Retries() != 1 || flow.Root.State() != task.StateRunning {
		t.Fatalf("expected first retry pending, got retries=%d state=%s", retry.Retries(), flow.Root.State())
	}

	fake.Advance(100 * time.Millisecond)
	fake.Advance(100 * time.Millisecond)

	if flow.Root.State() != task.StateErrored {
		t.Fatalf("expected ERRORED, got %s", flow.Root.State())
	}
	if retry.Retries() != 2 {
		t.Errorf("expected 2 retries, got %d", retry.Retries())
	}
	var execErr *task.ExecutionError
	if !errors.As(flow.Root.Err(), &execErr) || execErr.Message != "boom" {
		t.Errorf("expected ExecutionError boom, got %v", flow.Root.Err())
	}
}

func TestBuild_DefaultsApply(t *testing.T) {
	spec := mustParse(t, `{
		"defaults": {"retry": {"max_retries": 1, "delay_ms": -1}, "timeout_ms": 500},
		"steps": [
			{"id": "a", "type": "noop"},
			{"id": "b", "type": "noop", "retry": {"max_retries": 0}, "timeout_ms": 50}
		]
	}`)

	flow := mustBuild(t, spec, Env{Clock: clock.NewFake(epoch)})

	a, _ := flow.Step("a")
	to, ok := a.(*decorator.Timeout)
	if !ok {
		t.Fatalf("expected a to be *decorator.Timeout, got %T", a)
	}
	if to.Limit() != 500*time.Millisecond {
		t.Errorf("expected default limit 500ms, got %s", to.Limit())
	}
	if _, ok := to.Inner().(*decorator.Retry); !ok {
		t.Errorf("expected retry inside timeout, got %T", to.Inner())
	}

	b, _ := flow.Step("b")
	to, ok = b.(*decorator.Timeout)
	if !ok {
		t.Fatalf("expected b to be *decorator.Timeout, got %T", b)
	}
	if to.Limit() != 50*time.Millisecond {
		t.Errorf("expected limit 50ms, got %s", to.Limit())
	}
	if _, ok := to.Inner().(*decorator.Retry); ok {
		t.Error("max_retries 0 should not wrap the step in retry")
	}
}

func TestBuild_Timeout(t *testing.T) {
	spec := mustParse(t, `{
		"steps": [
			{"id": "slow", "type": "delay", "config": {"duration_ms": 1000}, "timeout_ms": 100}
		]
	}`)

	fake := clock.NewFake(epoch)
	flow := mustBuild(t, spec, Env{Clock: fake})

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	fake.Advance(100 * time.Millisecond)

	if flow.Root.State() != task.StateErrored {
		t.Fatalf("expected ERRORED, got %s", flow.Root.State())
	}
	var timeoutErr *task.TimeoutError
	if !errors.As(flow.Root.Err(), &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", flow.Root.Err())
	}
	if timeoutErr.After != 100*time.Millisecond {
		t.Errorf("expected timeout after 100ms, got %s", timeoutErr.After)
	}
	if fake.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", fake.Pending())
	}
}

func TestBuild_FailsafeAndFallback(t *testing.T) {
	spec := mustParse(t, `{
		"steps": [
			{"id": "optional", "type": "fail", "failsafe": true},
			{"id": "primary", "type": "fail",
			 "fallback": [
				{"id": "second", "type": "fail"},
				{"id": "third", "type": "noop", "config": {"output": "third"}}
			 ]},
			{"id": "last", "type": "noop", "depends_on": ["optional", "primary"]}
		]
	}`)

	flow := mustBuild(t, spec, Env{})

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Root.State() != task.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", flow.Root.State(), flow.Root.Err())
	}

	optional, _ := flow.Step("optional")
	if optional.Data() != nil {
		t.Errorf("failsafe step should complete with nil data, got %v", optional.Data())
	}
	primary, _ := flow.Step("primary")
	if primary.Data() != "third" {
		t.Errorf("expected fallback data %q, got %v", "third", primary.Data())
	}
	second, _ := flow.Step("primary.fallback.second")
	if second.State() != task.StateErrored {
		t.Errorf("expected second fallback ERRORED, got %s", second.State())
	}
}

func TestBuild_Stages(t *testing.T) {
	spec := mustParse(t, `{
		"name": "staged",
		"stages": [
			{"steps": [{"id": "a", "type": "noop"}, {"id": "b", "type": "noop"}]},
			{"steps": [{"id": "c", "type": "fail"}],
			 "fallback": [{"id": "c2", "type": "fail"}, {"id": "c3", "type": "noop", "config": {"output": "c3"}}]},
			{"steps": [{"id": "d", "type": "noop", "config": {"output": "done"}}]}
		]
	}`)

	flow := mustBuild(t, spec, Env{})

	chain, ok := flow.Root.(*graph.Chain)
	if !ok {
		t.Fatalf("expected *graph.Chain root, got %T", flow.Root)
	}

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Root.State() != task.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", flow.Root.State(), flow.Root.Err())
	}
	if flow.Root.Data() != "done" {
		t.Errorf("expected chain data from last stage, got %v", flow.Root.Data())
	}

	for id, want := range map[string]task.State{
		"c":  task.StateErrored,
		"c2": task.StateErrored,
		"c3": task.StateCompleted,
		"d":  task.StateCompleted,
	} {
		st, _ := flow.Step(id)
		if st.State() != want {
			t.Errorf("step %s: expected %s, got %s", id, want, st.State())
		}
	}

	d, _ := flow.Step("d")
	if len(chain.Prerequisites(d)) != 1 {
		t.Errorf("expected d to depend on one fallback group, got %d", len(chain.Prerequisites(d)))
	}
}

func TestBuild_ParallelBranches(t *testing.T) {
	spec := mustParse(t, `{
		"steps": [
			{"id": "p", "type": "parallel", "branches": [
				{"id": "one", "steps": [{"id": "x", "type": "noop"}, {"id": "y", "type": "noop", "config": {"output": "y"}}]},
				{"id": "two", "steps": [{"id": "x", "type": "noop"}]}
			]},
			{"id": "race", "type": "first_success", "depends_on": ["p"], "branches": [
				{"id": "bad", "steps": [{"id": "f", "type": "fail"}]},
				{"id": "good", "steps": [{"id": "ok", "type": "noop", "config": {"output": "ok"}}]}
			]}
		]
	}`)

	flow := mustBuild(t, spec, Env{})

	for _, id := range []string{"p", "p.one.x", "p.one.y", "p.two.x", "race", "race.bad.f", "race.good.ok"} {
		if _, ok := flow.Step(id); !ok {
			t.Errorf("step %s missing from index", id)
		}
	}

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Root.State() != task.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", flow.Root.State(), flow.Root.Err())
	}

	race, _ := flow.Step("race")
	data, ok := race.Data().([]any)
	if !ok || len(data) != 1 || data[0] != "ok" {
		t.Errorf("expected winning branch data [ok], got %v", race.Data())
	}
}

func TestBuild_Templates(t *testing.T) {
	spec := mustParse(t, `{
		"inputs": {"name": {"type": "string", "default": "bob"}, "env": {"type": "string"}},
		"steps": [
			{"id": "a", "type": "noop", "config": {"output": {"greeting": "hi"}}},
			{"id": "b", "type": "transform", "depends_on": ["a"], "config": {"mappings": {
				"msg": "{{ .Steps.a.Outputs.greeting }} {{ .Inputs.name }}",
				"status": "{{ .Steps.a.Status }}",
				"count": "{{ len .Steps.a.Outputs }}"
			}}},
			{"id": "skip", "type": "fail", "depends_on": ["a"], "condition": "eq .Inputs.env \"prod\""}
		]
	}`)

	flow := mustBuild(t, spec, Env{Inputs: map[string]any{"env": "dev"}})

	b, _ := flow.Step("b")
	if _, ok := b.(*decorator.Factory); !ok {
		t.Fatalf("templated step should be built lazily, got %T", b)
	}

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Root.State() != task.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", flow.Root.State(), flow.Root.Err())
	}

	out, ok := b.Data().(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", b.Data())
	}
	if out["msg"] != "hi bob" {
		t.Errorf("expected msg %q, got %v", "hi bob", out["msg"])
	}
	if out["status"] != task.StateCompleted.String() {
		t.Errorf("expected status COMPLETED, got %v", out["status"])
	}
	if out["count"] != int64(1) {
		t.Errorf("expected count 1, got %#v", out["count"])
	}

	skip, _ := flow.Step("skip")
	if skip.State() != task.StateCompleted || skip.Data() != nil {
		t.Errorf("skipped step should complete with nil data, got %s %v", skip.State(), skip.Data())
	}
}

func TestBuild_RerunAfterReset(t *testing.T) {
	spec := mustParse(t, `{
		"steps": [
			{"id": "a", "type": "noop", "config": {"output": "x"}},
			{"id": "b", "type": "transform", "depends_on": ["a"], "config": {"mappings": {"v": "{{ .Steps.a.Outputs.value }}"}}}
		]
	}`)

	flow := mustBuild(t, spec, Env{})

	for i := 0; i < 2; i++ {
		if err := flow.Root.Run(); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if flow.Root.State() != task.StateCompleted {
			t.Fatalf("run %d: expected COMPLETED, got %s", i, flow.Root.State())
		}
		if err := flow.Root.Reset(); err != nil {
			t.Fatalf("reset %d: %v", i, err)
		}
	}

	b, _ := flow.Step("b")
	if f := b.(*decorator.Factory); f.Built() != 2 {
		t.Errorf("expected the step to be rebuilt on every run, built %d times", f.Built())
	}
}

func TestBuild_EnvErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
		env  Env
		want error
	}{
		{
			name: "delay without clock",
			spec: `{"steps": [{"id": "d", "type": "delay", "config": {"duration_ms": 10}}]}`,
			want: ErrNoClock,
		},
		{
			name: "retry without clock",
			spec: `{"steps": [{"id": "a", "type": "noop", "retry": {"max_retries": 1}}]}`,
			want: ErrNoClock,
		},
		{
			name: "http without poster",
			spec: `{"steps": [{"id": "h", "type": "http", "config": {"url": "http://localhost"}}]}`,
			want: ErrNoPoster,
		},
		{
			name: "missing input",
			spec: `{"inputs": {"x": {"required": true}}, "steps": [{"id": "a", "type": "noop"}]}`,
			want: ErrMissingInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(mustParse(t, tt.spec), tt.env)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBuild_TemplateRenderErrorFailsStep(t *testing.T) {
	spec := mustParse(t, `{
		"steps": [
			{"id": "a", "type": "noop", "config": {"output": "{{ index .Inputs.list 5 }}"}}
		]
	}`)

	flow := mustBuild(t, spec, Env{Inputs: map[string]any{"list": []any{1}}})
	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flow.Root.State() != task.StateErrored {
		t.Fatalf("expected ERRORED, got %s", flow.Root.State())
	}
	if !errors.Is(flow.Root.Err(), ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender, got %v", flow.Root.Err())
	}
}

func TestBuild_TrackerAndRegistry(t *testing.T) {
	reg := DefaultRegistry()
	reg.Register(StepType{
		Name: "echo",
		Build: func(_ *BuildContext, id string, step *StepDef, config map[string]any) (task.Task, error) {
			return task.NewFunc(id, func() (any, error) { return config["say"], nil }), nil
		},
	})

	spec := &FlowSpec{Steps: []StepDef{
		{ID: "a", Type: "echo", Config: map[string]any{"say": "hello"}},
		{ID: "b", Type: "noop", DependsOn: []string{"a"}},
	}}

	var tracked []string
	tracker := TrackerFunc(func(t task.Task) { tracked = append(tracked, t.Name()) })

	flow := mustBuild(t, spec, Env{}, WithRegistry(reg), WithTracker(tracker))

	want := []string{"a", "b", "flow"}
	if strings.Join(tracked, ",") != strings.Join(want, ",") {
		t.Errorf("expected tracked %v, got %v", want, tracked)
	}
	if strings.Join(flow.Order, ",") != "a,b" {
		t.Errorf("unexpected build order %v", flow.Order)
	}

	if err := flow.Root.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	a, _ := flow.Step("a")
	if a.Data() != "hello" {
		t.Errorf("expected custom step data hello, got %v", a.Data())
	}
}

func TestBuild_HTTPOnLoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [1, 2, 3]}`))
	}))
	defer server.Close()

	spec := mustParse(t, `{
		"inputs": {"base": {"type": "string", "required": true}},
		"steps": [
			{"id": "fetch", "type": "http", "config": {"url": "{{ .Inputs.base }}/items"}},
			{"id": "count", "type": "transform", "depends_on": ["fetch"], "config": {"mappings": {
				"total": "{{ len .Steps.fetch.Outputs.body.items }}",
				"code": "{{ .Steps.fetch.Outputs.status_code }}"
			}}}
		]
	}`)

	loop := clock.NewLoop()
	env := LoopEnv(loop)
	env.Inputs = map[string]any{"base": server.URL}
	flow := mustBuild(t, spec, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	loop.Post(func() {
		flow.Root.On(task.EventFinal, func(task.Task) { cancel() }, nil)
		if err := flow.Root.Run(); err != nil {
			t.Errorf("run: %v", err)
		}
	})
	_ = loop.Run(ctx)

	if flow.Root.State() != task.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%v)", flow.Root.State(), flow.Root.Err())
	}
	count, _ := flow.Step("count")
	out := count.Data().(map[string]any)
	if out["total"] != int64(3) || out["code"] != int64(200) {
		t.Errorf("unexpected transform output %v", out)
	}
}
