// Package listener implements the thread-event listener chain, grounded
// in original_source/ThreadEventListener.java,
// AbstractThreadEventListenerDecorator.java, and
// DefaultThreadEventListener.java.
//
// Implementations must never let a hook panic the caller's goroutine for
// reasons they don't control; the machine package that drives these hooks
// recovers panics from them defensively, but a well-behaved Listener
// should catch its own errors.
package listener

import (
	"github.com/masvboston/concurrent-aspects/pkg/pool"
)

// Listener observes the lifecycle of a task submitted through the thread
// machine.
type Listener interface {
	// BeforeThread runs immediately before task executes. Returning false
	// cancels the run: task never executes and AfterThread is not called.
	BeforeThread(task pool.Task) bool

	// AfterThread runs once task has completed successfully. It is not
	// called if BeforeThread vetoed the run or if task failed.
	AfterThread(task pool.Task)

	// OnException runs when task fails. Returning nil swallows the
	// error; returning a non-nil error surfaces it (wrapped if
	// necessary) to the pool's default failure pathway.
	OnException(task pool.Task, err error) error
}

// Decorator forwards every call to Target, letting an embedder override
// only the hooks it cares about.
type Decorator struct {
	Target Listener
}

func (d Decorator) BeforeThread(task pool.Task) bool {
	return d.Target.BeforeThread(task)
}

func (d Decorator) AfterThread(task pool.Task) {
	d.Target.AfterThread(task)
}

func (d Decorator) OnException(task pool.Task, err error) error {
	return d.Target.OnException(task, err)
}

// Default permits every run, does nothing on completion, and re-surfaces
// every error unchanged. It is the listener a machine.Controller starts
// with.
type Default struct{}

func (Default) BeforeThread(pool.Task) bool { return true }

func (Default) AfterThread(pool.Task) {}

func (Default) OnException(_ pool.Task, err error) error { return err }
