// Package runtimer implements the periodic-timer controller, grounded in
// original_source/RunsOnTimerController.java. A callback registered for an
// (instance, attribute) pair runs once after an initial delay and then
// repeatedly every period, on its own goroutine, until either the timer is
// explicitly stopped or the owning instance becomes unreachable.
package runtimer

import (
	"fmt"
	"log"
	"sync"
	"time"
	"weak"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/common/validation"
	"github.com/masvboston/concurrent-aspects/pkg/registry"
)

// handle is the value tracked in the registry for a running timer. Closing
// stop is idempotent via once so Stop may be called any number of times.
type handle struct {
	stop chan struct{}
	once sync.Once
}

func newHandle() *handle {
	return &handle{stop: make(chan struct{})}
}

// Stop cancels the timer. Safe to call more than once and from any
// goroutine.
func (h *handle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Controller tracks which (instance, attribute) pairs already have a timer
// running, mirroring the role of runonce.Controller but for repeating
// callbacks instead of single-shot ones. S is the caller's attribute
// identity type, exactly as in runonce.Controller.
type Controller[S comparable] struct {
	mu   sync.Mutex
	sets *registry.TypedSet[S, *handle]
}

// New creates an empty Controller.
func New[S comparable]() *Controller[S] {
	return &Controller[S]{sets: registry.NewTypedSet[S, *handle]()}
}

// Add schedules callback to run once after delay and then every period on
// its own goroutine, registering the timer under (inst, attr). If a timer
// is already registered for that pair, callback instead runs synchronously
// on the caller's goroutine — a panic inside it propagates to the caller,
// unlike a panic inside the scheduled timer loop, which is recovered and
// logged so a faulty callback cannot kill the timer. Add returns true iff
// it created a new timer.
//
// delay must be >= 0 and period must be > 0; callback must not be nil. The
// timer self-terminates, without any explicit Stop call, once inst becomes
// unreachable: it holds only a weak.Pointer back-reference and checks it
// after every tick. A pointer-free instance smaller than 16 bytes may be
// tiny-allocated in a block shared with other objects, and then stays
// reachable, and its timer keeps running, for as long as they do.
func Add[I any, S comparable](c *Controller[S], inst *I, attr S, delay, period time.Duration, callback func()) (bool, error) {
	if inst == nil {
		return false, fmt.Errorf("instance cannot be nil: %w", aerrors.ErrInvalidArgument)
	}
	if callback == nil {
		return false, fmt.Errorf("callback cannot be nil: %w", aerrors.ErrInvalidArgument)
	}
	if err := validation.NonNegative("delay", delay); err != nil {
		return false, err
	}
	if err := validation.Positive("period", period); err != nil {
		return false, err
	}

	reg := registry.For[I](c.sets)

	c.mu.Lock()
	defer c.mu.Unlock()

	found, err := reg.Contains(inst, attr)
	if err != nil {
		return false, err
	}
	if found {
		callback()
		return false, nil
	}

	h := newHandle()
	if _, _, err := reg.Add(inst, attr, h); err != nil {
		return false, err
	}

	wp := weak.Make(inst)
	go runLoop(h, wp, delay, period, callback)

	return true, nil
}

// Stop cancels the timer registered for (inst, attr), if any, and removes
// it from the registry. It returns true iff a timer was found and stopped.
func Stop[I any, S comparable](c *Controller[S], inst *I, attr S) (bool, error) {
	reg := registry.For[I](c.sets)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, hadPrev, err := reg.Add(inst, attr, nil)
	if err != nil {
		return false, err
	}
	if !hadPrev || prev == nil {
		if !hadPrev {
			_, _ = reg.Remove(inst, attr)
		}
		return false, nil
	}
	prev.Stop()
	_, err = reg.Remove(inst, attr)
	return true, err
}

func runLoop[I any](h *handle, wp weak.Pointer[I], delay, period time.Duration, callback func()) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-timer.C:
		}

		if wp.Value() == nil {
			return
		}

		runOnce(callback)

		timer.Reset(period)
	}
}

func runOnce(callback func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("runtimer: callback panicked: %v", r)
		}
	}()
	callback()
}
