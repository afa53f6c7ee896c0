// Package pool implements the pool factory described in the task-dispatch
// framework: a bounded pool with a caller-runs saturation policy, grounded
// in original_source/ExecutorServiceFactory.java and a channel-based
// worker loop, and an unbounded cached pool that creates workers on demand
// and recycles idle ones, grounded in the same original's unbounded
// executor shape.
package pool

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/common/rollingid"
)

// Default sizing constants, mirrored from the original's
// ExecutorServiceFactory.
const (
	DefaultInit          = 5
	DefaultQueueCapacity = 100
	DefaultIdleTTL       = 60 * time.Second
)

// Task is a unit of work submitted to a Pool. It receives a context that is
// cancelled when its Handle is cancelled or when the task has its own
// deadline applied.
type Task func(ctx context.Context) error

// Pool is the common surface both the bounded and cached pool
// implementations satisfy.
type Pool interface {
	// Name identifies the pool for logging and metrics.
	Name() string

	// Submit queues task for execution and returns a Handle to observe or
	// cancel it. It returns an error only if the pool has already been
	// asked to shut down.
	Submit(ctx context.Context, task Task) (*Handle, error)

	// ActiveWorkers reports the number of live worker goroutines.
	ActiveWorkers() int

	// QueueSize reports the number of tasks waiting for a worker.
	QueueSize() int

	// Shutdown stops accepting new work and waits for in-flight and queued
	// tasks to drain, or until ctx is done, whichever comes first. It
	// returns an error if the pool did not fully drain in time.
	Shutdown(ctx context.Context) error

	// ShutdownNow stops accepting new work and cancels every running and
	// queued task's context immediately, without waiting for drain.
	ShutdownNow()
}

// poolID is process-wide: every pool, bounded or cached, draws its id from
// this one generator, matching the original's single shared id sequence
// for thread naming.
var poolID rollingid.Generator

// taskItem pairs a submitted Task with the Handle the caller was given and
// the context it should run under.
type taskItem struct {
	ctx    context.Context
	cancel context.CancelFunc
	task   Task
	handle *Handle
}

// run executes the task and reports its result on the handle, recovering
// a panic inside it rather than letting it take down the worker goroutine.
// workerName identifies the running goroutine in the panic log line.
func (t taskItem) run(workerName string) {
	defer t.cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pool: worker %s recovered from panic: %v", workerName, r)
			t.handle.finish(fmt.Errorf("task panicked: %v", r))
		}
	}()
	err := t.task(t.ctx)
	t.handle.finish(err)
}

func defaultCore() int {
	n := runtime.NumCPU()
	if n > DefaultInit {
		return DefaultInit
	}
	return n
}

func defaultMax() int {
	n := runtime.NumCPU() + 1
	if n < DefaultInit+1 {
		return DefaultInit + 1
	}
	return n
}

func errAlreadyShutdown(name string) error {
	return fmt.Errorf("pool %q has already been shut down: %w", name, aerrors.ErrIllegalState)
}

// workerName builds a worker goroutine's display name in the form
// "<kind>poolID-<P>-threadID-<T>": kind distinguishes bounded from cached
// pools, P is the process-wide pool id, and T is a counter private to this
// pool.
func workerName(kind string, pID, tID int64) string {
	return fmt.Sprintf("%spoolID-%d-threadID-%d", kind, pID, tID)
}
