// Package task defines the Task entity and its Registry: named units of
// work with dependencies, declared file-level inputs/outputs, a body, and
// optional documentation. Grounded on specialistvlad-burstgridgo's
// internal/registry.Registry (a map of handler name to metadata, populated
// once and read many times), generalized from "runner/asset definitions
// decoded from HCL" to "tasks registered directly from Go code".
package task

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/vk/pake/internal/pakeerr"
	"github.com/vk/pake/internal/taskctx"
)

// Body is the callable a task runs when it is out of date.
type Body func(ctx *taskctx.Context) error

// Task is the core registered entity: a name, its dependencies, its
// declared inputs/outputs (patterns, expanded eagerly at execution time by
// the classifier, not here), its body, and optional documentation.
type Task struct {
	Name         string
	Dependencies []string
	Inputs       []string
	Outputs      []string
	Body         Body
	Doc          string
}

// Registry interns tasks by name, preserving registration order for the
// deterministic tie-break used by the graph's topological walk.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Task
	order    []string
	byFunc   map[uintptr]*Task
	defaults []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Task),
		byFunc: make(map[uintptr]*Task),
	}
}

// Add registers t. Re-registration under the same name fails with
// TaskRedefined, per the uniqueness invariant.
func (r *Registry) Add(t *Task) error {
	if t.Name == "" {
		return fmt.Errorf("task: name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[t.Name]; exists {
		return &pakeerr.TaskRedefined{Name: t.Name}
	}

	// Outputs declared without inputs make freshness undefined; reject at
	// registration time rather than waiting to discover it mid-run.
	if len(t.Outputs) > 0 && len(t.Inputs) == 0 {
		return &pakeerr.OutputsWithoutInputs{Task: t.Name}
	}

	t.Dependencies = dedupPreserveOrder(t.Dependencies)

	r.byName[t.Name] = t
	r.order = append(r.order, t.Name)
	if t.Body != nil {
		r.byFunc[reflect.ValueOf(t.Body).Pointer()] = t
	}
	return nil
}

// SetDefaults records the task names to run when none are requested.
func (r *Registry) SetDefaults(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = append([]string{}, names...)
}

// Defaults returns the configured default task names.
func (r *Registry) Defaults() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.defaults...)
}

// ByName looks up a registered task by name.
func (r *Registry) ByName(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// ByFunc looks up a registered task by the identity of its body callable,
// so tasks may be referenced either by name or by direct handle.
func (r *Registry) ByFunc(fn Body) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byFunc[reflect.ValueOf(fn).Pointer()]
	return t, ok
}

// Order returns the registration-order index of every registered task name,
// for the graph's topological tie-break.
func (r *Registry) Order() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.order))
	for i, name := range r.order {
		out[name] = i
	}
	return out
}

// Names returns every registered task name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

func dedupPreserveOrder(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
