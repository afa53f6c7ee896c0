// Package registry implements the instance-attribute registry: a mapping
// from a weakly-referenced instance to a mapping from an attribute key to
// a value, whose inner mapping is reclaimed once the instance becomes
// unreachable.
//
// The original (original_source/InstanceAttributeTracker.java) used
// java.util.WeakHashMap<TInstance, Map<TAttribute, TValue>>. Go 1.24's
// weak.Pointer plus runtime.AddCleanup is the direct equivalent: a
// weak.Pointer compares equal across repeated weak.Make calls on the same
// object, so it can be used as a map key without retaining the object,
// and AddCleanup schedules the inner-map removal for exactly when the GC
// reclaims the instance — see DESIGN.md's registry entry.
package registry

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"weak"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/common/validation"
)

// Registry maps a weakly-held *I to an A->V map. It is safe for concurrent
// use, though callers that need an atomic multi-step sequence (check, then
// add) should use CheckAndAdd rather than composing Contains and Add.
type Registry[I any, A comparable, V any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[I]]map[A]V
}

// New creates an empty Registry.
func New[I any, A comparable, V any]() *Registry[I, A, V] {
	return &Registry[I, A, V]{entries: make(map[weak.Pointer[I]]map[A]V)}
}

func isNilAttr(attr any) bool {
	if attr == nil {
		return true
	}
	rv := reflect.ValueOf(attr)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

func validate[I any, A comparable](inst *I, attr A) error {
	if inst == nil {
		return fmt.Errorf("instance cannot be nil: %w", aerrors.ErrInvalidArgument)
	}
	if isNilAttr(attr) {
		return fmt.Errorf("attribute cannot be nil: %w", aerrors.ErrInvalidArgument)
	}
	return validation.NotSameReference(any(inst), any(attr))
}

// Contains reports whether attr is recorded for inst.
func (r *Registry[I, A, V]) Contains(inst *I, attr A) (bool, error) {
	if err := validate(inst, attr); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inner, ok := r.entries[weak.Make(inst)]
	if !ok {
		return false, nil
	}
	_, ok = inner[attr]
	return ok, nil
}

func (r *Registry[I, A, V]) ensureInnerLocked(inst *I) map[A]V {
	wp := weak.Make(inst)
	inner, ok := r.entries[wp]
	if ok {
		return inner
	}
	inner = make(map[A]V)
	r.entries[wp] = inner
	runtime.AddCleanup(inst, r.cleanup, wp)
	return inner
}

func (r *Registry[I, A, V]) cleanup(wp weak.Pointer[I]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, wp)
}

// CheckAndAdd atomically inserts value for (inst, attr) if no entry exists
// yet, returning true iff it inserted. This is the primitive run-once and
// the timer controller build on.
func (r *Registry[I, A, V]) CheckAndAdd(inst *I, attr A, value V) (bool, error) {
	if err := validate(inst, attr); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	inner := r.ensureInnerLocked(inst)
	if _, exists := inner[attr]; exists {
		return false, nil
	}
	inner[attr] = value
	return true, nil
}

// Add unconditionally sets (inst, attr) to value and returns the previous
// value, if any.
func (r *Registry[I, A, V]) Add(inst *I, attr A, value V) (prev V, hadPrev bool, err error) {
	if err = validate(inst, attr); err != nil {
		return prev, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	inner := r.ensureInnerLocked(inst)
	prev, hadPrev = inner[attr]
	inner[attr] = value
	return prev, hadPrev, nil
}

// Remove deletes (inst, attr) if present, returning true if it was found.
func (r *Registry[I, A, V]) Remove(inst *I, attr A) (bool, error) {
	if err := validate(inst, attr); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	inner, ok := r.entries[weak.Make(inst)]
	if !ok {
		return false, nil
	}
	if _, ok := inner[attr]; !ok {
		return false, nil
	}
	delete(inner, attr)
	return true, nil
}

// InstanceCount returns the number of live (not yet GC'd) instances
// tracked by the registry. Intended for tests and diagnostics.
func (r *Registry[I, A, V]) InstanceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
