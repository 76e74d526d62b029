package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Taskflow/internal/task"
)

// Встроенные типы шагов.
const (
	StepTypeNoop         = "noop"
	StepTypeFail         = "fail"
	StepTypeDelay        = "delay"
	StepTypeHTTP         = "http"
	StepTypeTransform    = "transform"
	StepTypeParallel     = "parallel"
	StepTypeFirstSuccess = "first_success"
)

// BuildFunc строит задачу шага. id — полный ID шага, config —
// конфигурация после рендеринга шаблонов.
type BuildFunc func(bc *BuildContext, id string, step *StepDef, config map[string]any) (task.Task, error)

// StepType — тип шага в реестре.
type StepType struct {
	// Name — значение поля type в StepDef.
	Name string

	// Build строит задачу шага.
	Build BuildFunc

	// Branches — тип строится из веток (parallel, first_success).
	Branches bool
}

// Registry — реестр типов шагов.
//
// Позволяет регистрировать и получать типы шагов по имени.
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	types map[string]StepType
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]StepType),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными типами шагов.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(StepType{Name: StepTypeNoop, Build: buildNoop})
	r.Register(StepType{Name: StepTypeFail, Build: buildFail})
	r.Register(StepType{Name: StepTypeDelay, Build: buildDelay})
	r.Register(StepType{Name: StepTypeHTTP, Build: buildHTTP})
	r.Register(StepType{Name: StepTypeTransform, Build: buildTransform})
	r.Register(StepType{Name: StepTypeParallel, Build: buildParallel, Branches: true})
	r.Register(StepType{Name: StepTypeFirstSuccess, Build: buildFirstSuccess, Branches: true})

	return r
}

// Register регистрирует тип шага.
// Если тип с таким именем уже существует, он будет перезаписан.
func (r *Registry) Register(st StepType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[st.Name] = st
}

// Get возвращает тип шага по имени.
// Возвращает ErrUnknownStepType, если тип не найден.
func (r *Registry) Get(name string) (StepType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, exists := r.types[name]
	if !exists {
		return StepType{}, fmt.Errorf("%w: %s", ErrUnknownStepType, name)
	}
	return st, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.types[name]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.types, name)
}
