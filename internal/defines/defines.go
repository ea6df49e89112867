// Package defines owns the process-wide "defines" map described by the
// data model: a read-only-after-init string-to-typed-value map populated
// from stdin and from repeatable -D flags, plus the exports subset that
// propagates to sub-builds.
package defines

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vk/pake/internal/literal"
	"github.com/zclconf/go-cty/cty"
)

// Map is a frozen-after-init key/value store of typed define values.
type Map struct {
	mu     sync.RWMutex
	values map[string]cty.Value
	frozen bool
}

// New returns an empty, unfrozen Map.
func New() *Map {
	return &Map{values: make(map[string]cty.Value)}
}

// Set stores a value under key. It panics if the map has been frozen —
// mutation is only legal during the initialization phase.
func (m *Map) Set(key string, val cty.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		panic("defines: Set called on a frozen Map")
	}
	m.values[key] = val
}

// Merge copies every entry of other into m, overwriting existing keys.
// Used to apply stdin-provided defines before -D overrides are merged in.
func (m *Map) Merge(other map[string]cty.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		panic("defines: Merge called on a frozen Map")
	}
	for k, v := range other {
		m.values[k] = v
	}
}

// Freeze marks the map read-only. Subsequent Set/Merge calls panic.
func (m *Map) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (cty.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the set of defined keys, unordered.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of the underlying map, safe to hand to
// code outside this package (cty.Value is itself immutable).
func (m *Map) Snapshot() map[string]cty.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]cty.Value, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// ParseKeyValue parses a single "-D" operand of the form KEY=VALUE or just
// KEY (meaning boolean true), returning the key and parsed literal value.
// A VALUE that does not parse as a literal (e.g. CC=gcc) is taken as a
// plain string.
func ParseKeyValue(operand string) (string, cty.Value, error) {
	idx := strings.IndexByte(operand, '=')
	if idx < 0 {
		return operand, cty.True, nil
	}
	key := operand[:idx]
	raw := operand[idx+1:]
	if key == "" {
		return "", cty.NilVal, fmt.Errorf("defines: empty key in %q", operand)
	}
	val, err := literal.Parse(raw)
	if err != nil {
		return key, cty.StringVal(raw), nil
	}
	return key, val, nil
}

// Exports is the propagation subset of a Map: values marked for transfer
// to sub-build invocations via the child's stdin.
type Exports struct {
	mu     sync.RWMutex
	values map[string]cty.Value
}

// NewExports returns an empty export set.
func NewExports() *Exports {
	return &Exports{values: make(map[string]cty.Value)}
}

// Export marks key=val for propagation to sub-builds.
func (e *Exports) Export(key string, val cty.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = val
}

// Unexport removes key from the propagation set, if present.
func (e *Exports) Unexport(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.values, key)
}

// Snapshot returns a shallow copy of the exported values.
func (e *Exports) Snapshot() map[string]cty.Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]cty.Value, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}
