package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/composite"
	"github.com/shaiso/Taskflow/internal/decorator"
	"github.com/shaiso/Taskflow/internal/graph"
	"github.com/shaiso/Taskflow/internal/leaf"
	"github.com/shaiso/Taskflow/internal/task"
)

// Ошибки окружения построения.
var (
	// ErrNoClock — шагу нужны часы, а Env.Clock не задан.
	ErrNoClock = errors.New("build environment has no clock")

	// ErrNoPoster — HTTP шагу нужен цикл задач, а Env.Poster не задан.
	ErrNoPoster = errors.New("build environment has no poster")
)

// Tracker подписывается на события задач, построенных движком.
type Tracker interface {
	Track(t task.Task)
}

// TrackerFunc адаптирует функцию к Tracker.
type TrackerFunc func(t task.Task)

// Track вызывает f(t).
func (f TrackerFunc) Track(t task.Task) { f(t) }

// Env — окружение, в котором строятся задачи flow.
//
// Значения по умолчанию передаются явно, глобальных настроек нет.
type Env struct {
	// Clock — часы для delay, retry и timeout.
	Clock clock.Clock

	// Poster возвращает результаты HTTP запросов в цикл задач.
	Poster leaf.Poster

	// HTTP — значения по умолчанию для HTTP шагов.
	HTTP leaf.HTTPDefaults

	// DefaultTimeout применяется к шагам без timeout_ms (0 — без таймаута).
	DefaultTimeout time.Duration

	// Inputs — входные параметры flow.
	Inputs map[string]any

	// Vars доступны в шаблонах как .Env.
	Vars map[string]string

	// Logger — логгер задач (по умолчанию slog.Default()).
	Logger *slog.Logger
}

// LoopEnv возвращает Env, где часами и Poster служит один цикл.
func LoopEnv(loop *clock.Loop) Env {
	return Env{Clock: loop, Poster: loop}
}

// Option настраивает Build.
type Option func(*buildOptions)

type buildOptions struct {
	registry *Registry
	trackers []Tracker
}

// WithRegistry задаёт реестр типов шагов.
func WithRegistry(r *Registry) Option {
	return func(o *buildOptions) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithTracker подключает трекеры ко всем шагам и корню flow.
func WithTracker(trackers ...Tracker) Option {
	return func(o *buildOptions) {
		for _, t := range trackers {
			if t != nil {
				o.trackers = append(o.trackers, t)
			}
		}
	}
}

// Flow — построенный flow.
type Flow struct {
	// Spec — исходная спецификация.
	Spec *FlowSpec

	// Root — корневая задача: graph.Graph для steps, graph.Chain для stages.
	Root task.Task

	// Steps — задачи шагов по полному ID (вместе с декораторами).
	Steps map[string]task.Task

	// Order — ID шагов в порядке построения.
	Order []string
}

// Step возвращает задачу шага по ID.
func (f *Flow) Step(id string) (task.Task, bool) {
	t, ok := f.Steps[id]
	return t, ok
}

// Name возвращает имя flow.
func (f *Flow) Name() string {
	return flowName(f.Spec)
}

// Build валидирует спецификацию и строит дерево задач.
//
// Порядок обёрток шага: лист → fallback → retry → timeout → failsafe.
// Шаги с шаблонами в config или с condition строятся лениво при
// запуске (decorator.Factory), когда результаты предыдущих шагов известны.
func Build(spec *FlowSpec, env Env, opts ...Option) (*Flow, error) {
	o := buildOptions{registry: DefaultRegistry()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := ValidateWith(spec, o.registry); err != nil {
		return nil, err
	}

	inputs, err := spec.ResolveInputs(env.Inputs)
	if err != nil {
		return nil, err
	}

	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bc := &BuildContext{
		env:      env,
		reg:      o.registry,
		trackers: o.trackers,
		inputs:   inputs,
		logger:   logger.With("flow", flowName(spec)),
		flow: &Flow{
			Spec:  spec,
			Steps: make(map[string]task.Task),
		},
	}

	if spec.IsStaged() {
		err = bc.buildStages(spec)
	} else {
		err = bc.buildGraph(spec)
	}
	if err != nil {
		return nil, err
	}

	bc.adopt(bc.flow.Root)
	bc.track(bc.flow.Root)
	return bc.flow, nil
}

// BuildContext передаётся в BuildFunc: окружение, логгер и построение
// вложенных шагов.
type BuildContext struct {
	env      Env
	reg      *Registry
	trackers []Tracker
	inputs   map[string]any
	logger   *slog.Logger
	flow     *Flow
}

// Env возвращает окружение построения.
func (bc *BuildContext) Env() Env {
	return bc.env
}

// Logger возвращает логгер flow.
func (bc *BuildContext) Logger() *slog.Logger {
	return bc.logger
}

// BuildBranch строит ветку шага stepID: последовательный Composite
// из шагов ветки.
func (bc *BuildContext) BuildBranch(stepID string, branch *Branch) (task.Task, error) {
	tasks := make([]task.Task, 0, len(branch.Steps))
	for i := range branch.Steps {
		s := &branch.Steps[i]
		t, err := bc.buildStep(branchStepID(stepID, branch.ID, s.ID), s)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	c := composite.NewComposite(false, tasks...)
	c.SetName(branch.ID)
	bc.adopt(c)
	return c, nil
}

func (bc *BuildContext) buildGraph(spec *FlowSpec) error {
	plan, err := planSteps(spec)
	if err != nil {
		return err
	}

	g := graph.New()
	g.SetName(flowName(spec))

	for _, id := range plan.order {
		t, err := bc.buildStep(id, plan.steps[id])
		if err != nil {
			return err
		}

		prereqs := make([]task.Task, 0, len(plan.prereqs[id]))
		for _, dep := range plan.prereqs[id] {
			prereqs = append(prereqs, bc.flow.Steps[dep])
		}
		if err := g.Add(t, prereqs...); err != nil {
			return fmt.Errorf("add step %s: %w", id, err)
		}
	}

	bc.flow.Root = g
	return nil
}

func (bc *BuildContext) buildStages(spec *FlowSpec) error {
	chain := graph.NewChain()
	chain.SetName(flowName(spec))

	for i := range spec.Stages {
		stage := &spec.Stages[i]

		tasks := make([]task.Task, 0, len(stage.Steps))
		for j := range stage.Steps {
			t, err := bc.buildStep(stage.Steps[j].ID, &stage.Steps[j])
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		chain.Then(tasks...)

		for j := range stage.Fallback {
			t, err := bc.buildStep(stage.Fallback[j].ID, &stage.Fallback[j])
			if err != nil {
				return err
			}
			chain.Or(t)
		}
	}

	if err := chain.BuildErr(); err != nil {
		return fmt.Errorf("build stages: %w", err)
	}
	bc.flow.Root = chain
	return nil
}

// buildStep строит шаг со всеми обёртками и регистрирует его под id.
func (bc *BuildContext) buildStep(id string, step *StepDef) (task.Task, error) {
	st, err := bc.reg.Get(step.Type)
	if err != nil {
		return nil, NewValidationError(id, "type", err.Error(), ErrUnknownStepType)
	}

	var t task.Task
	if !st.Branches && needsRender(step) {
		t = bc.deferred(id, st, step)
	} else {
		t, err = st.Build(bc, id, step, step.Config)
		if err != nil {
			return nil, wrapBuildErr(id, err)
		}
	}
	bc.adopt(t)

	name := stepName(step)

	if len(step.Fallback) > 0 {
		alts := []task.Task{t}
		for i := range step.Fallback {
			fb := &step.Fallback[i]
			alt, err := bc.buildStep(fallbackID(id, fb.ID), fb)
			if err != nil {
				return nil, err
			}
			alts = append(alts, alt)
		}
		sos := composite.NewStopOnSuccess(false, alts...)
		sos.SetName("or(" + name + ")")
		bc.adopt(sos)
		t = sos
	}

	if policy := bc.retryPolicy(step); policy != nil && policy.MaxRetries > 0 {
		delay := time.Duration(policy.DelayMs) * time.Millisecond
		if delay >= 0 && bc.env.Clock == nil {
			return nil, wrapBuildErr(id, ErrNoClock)
		}
		opts := []decorator.Option{decorator.WithClock(bc.env.Clock)}
		if policy.Backoff == BackoffExponential {
			opts = append(opts, decorator.WithExponentialBackoff(time.Duration(policy.MaxDelayMs)*time.Millisecond))
		}
		r := decorator.NewRetry(t, policy.MaxRetries, delay, opts...)
		bc.adopt(r)
		t = r
	}

	if limit := bc.timeout(step); limit > 0 {
		if bc.env.Clock == nil {
			return nil, wrapBuildErr(id, ErrNoClock)
		}
		to := decorator.NewTimeout(t, limit, decorator.WithClock(bc.env.Clock))
		bc.adopt(to)
		t = to
	}

	if bc.failsafe(step) {
		fs := decorator.NewFailsafe(t)
		bc.adopt(fs)
		t = fs
	}

	bc.flow.Steps[id] = t
	bc.flow.Order = append(bc.flow.Order, id)
	bc.track(t)
	return t, nil
}

// deferred откладывает построение листа до запуска: шаблоны в config
// и condition рендерятся по результатам уже выполненных шагов.
func (bc *BuildContext) deferred(id string, st StepType, step *StepDef) task.Task {
	name := stepName(step)
	f := decorator.NewDeferredFactory(func() (task.Task, error) {
		ctx := bc.templateContext()

		if step.Condition != "" {
			ok, err := RenderCondition(step.Condition, ctx)
			if err != nil {
				return nil, wrapBuildErr(id, err)
			}
			if !ok {
				bc.logger.Debug("step skipped", "step_id", id, "condition", step.Condition)
				skipped := task.NewFunc(name, nil)
				bc.adopt(skipped)
				return skipped, nil
			}
		}

		config, err := RenderConfig(step.Config, ctx)
		if err != nil {
			return nil, wrapBuildErr(id, err)
		}
		inner, err := st.Build(bc, id, step, config)
		if err != nil {
			return nil, wrapBuildErr(id, err)
		}
		bc.adopt(inner)
		return inner, nil
	}).RecreateAfterError().RecreateOnReset()
	f.SetName(name)
	return f
}

// templateContext собирает контекст шаблонов из входных параметров
// и завершённых шагов.
func (bc *BuildContext) templateContext() *Context {
	return contextFromSteps(bc.inputs, bc.env.Vars, bc.flow.Steps)
}

func (bc *BuildContext) retryPolicy(step *StepDef) *RetryPolicy {
	if step.Retry != nil {
		return step.Retry
	}
	if d := bc.flow.Spec.Defaults; d != nil {
		return d.Retry
	}
	return nil
}

func (bc *BuildContext) timeout(step *StepDef) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	if d := bc.flow.Spec.Defaults; d != nil && d.TimeoutMs > 0 {
		return time.Duration(d.TimeoutMs) * time.Millisecond
	}
	return bc.env.DefaultTimeout
}

func (bc *BuildContext) failsafe(step *StepDef) bool {
	if step.Failsafe != nil {
		return *step.Failsafe
	}
	if d := bc.flow.Spec.Defaults; d != nil {
		return d.Failsafe
	}
	return false
}

// adopt передаёт задаче логгер flow.
func (bc *BuildContext) adopt(t task.Task) {
	if l, ok := t.(interface{ SetLogger(*slog.Logger) }); ok {
		l.SetLogger(bc.logger)
	}
}

func (bc *BuildContext) track(t task.Task) {
	for _, tr := range bc.trackers {
		tr.Track(t)
	}
}

// needsRender сообщает, нужно ли строить шаг при запуске.
func needsRender(step *StepDef) bool {
	return step.Condition != "" || hasTemplate(step.Config)
}

func wrapBuildErr(id string, err error) error {
	return fmt.Errorf("step %s: %w", id, err)
}

func stepName(step *StepDef) string {
	if step.Name != "" {
		return step.Name
	}
	return step.ID
}

func flowName(spec *FlowSpec) string {
	if spec != nil && spec.Name != "" {
		return spec.Name
	}
	return "flow"
}
