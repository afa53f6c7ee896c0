// Package runonce guarantees at-most-one execution of a callback per
// (instance, call-site) pair, grounded in
// original_source/RunOnceController.java.
package runonce

import (
	"sync"

	"github.com/masvboston/concurrent-aspects/pkg/registry"
)

// Controller tracks which (instance, call site) pairs have already run.
// Its S type parameter is the caller's call-site identity type — a
// stable identity for a declaration site such that two invocations of
// the same declaration on the same instance compare equal. A
// package-level var's address, a string constant, or a generated token
// all satisfy this.
// It is process-wide and safe for concurrent use; one Controller can
// track any number of distinct instance types because it keeps one
// registry.Registry per concrete instance type behind a
// registry.TypedSet.
type Controller[S comparable] struct {
	mu   sync.Mutex
	sets *registry.TypedSet[S, struct{}]
}

// New creates an empty Controller.
func New[S comparable]() *Controller[S] {
	return &Controller[S]{sets: registry.NewTypedSet[S, struct{}]()}
}

// Do runs body exactly once for the (inst, site) pair across however many
// times Do is called for it, from however many goroutines. It returns
// true iff this call was the one that ran body.
func Do[I any, S comparable](c *Controller[S], inst *I, site S, body func()) (bool, error) {
	reg := registry.For[I](c.sets)

	// The registry's CheckAndAdd is already atomic per (inst, attr); the
	// controller-wide lock additionally serializes body's execution for
	// distinct instances tracked by the same registry, matching the
	// original's "synchronized (this.methodTracker)" around the whole
	// check-then-run sequence.
	c.mu.Lock()
	defer c.mu.Unlock()

	inserted, err := reg.CheckAndAdd(inst, site, struct{}{})
	if err != nil {
		return false, err
	}
	if inserted {
		body()
	}
	return inserted, nil
}
