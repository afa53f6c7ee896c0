// Package timeout implements the timeout controller, grounded in
// original_source/TimeOutController.java: run a callback under a
// wall-clock deadline, raising a timeout error if it is exceeded.
//
// Unlike the original, which cancels the worker's future in a finally
// block on every path including success, Controller only requests
// cancellation when the deadline is actually exceeded or the callback
// itself fails. A successful callback's context still ends as soon as the
// callback returns, because the pool cancels every task's context when
// the task finishes; Execute's deferred cancel of its own
// context.WithCancel then ends the parent when Execute returns. The original's
// always-cancel was harmless there because FutureTask.cancel on an
// already-finished task is a no-op, but it reads as accidental; Go's
// idiom of "the context that bounds an operation is cancelled once, when
// the operation is truly over" is clearer about intent.
package timeout

import (
	"context"
	"fmt"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/common/validation"
	"github.com/masvboston/concurrent-aspects/pkg/pool"
)

// Executor is the minimal surface Controller needs from a worker pool.
// pool.Pool satisfies it.
type Executor interface {
	Submit(ctx context.Context, task pool.Task) (*pool.Handle, error)
}

// Controller runs callbacks under a deadline on an Executor. The zero
// value is not ready to use; construct one with New or NewWithExecutor.
type Controller struct {
	executor Executor
	owned    pool.Pool
}

// New creates a Controller backed by its own unbounded cached pool of
// daemon-style background workers, cached for reuse, matching the
// original's default Executors.newCachedThreadPool.
func New() *Controller {
	p := pool.NewCached("timeout-default", pool.CachedConfig{})
	return &Controller{executor: p, owned: p}
}

// NewWithExecutor creates a Controller that submits work to an
// externally-managed executor instead of creating its own pool.
func NewWithExecutor(executor Executor) *Controller {
	return &Controller{executor: executor}
}

// Close shuts down the pool created by New. It is a no-op for a
// Controller built with NewWithExecutor, since that pool is not this
// Controller's to manage.
func (c *Controller) Close(ctx context.Context) error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Shutdown(ctx)
}

// Execute submits callback to the executor and waits up to timeout for it
// to finish. On expiry it returns an ErrTimeout-wrapped error and requests
// cancellation of the callback's context; callback is responsible for
// checking ctx and returning promptly once that happens — Execute does
// not forcibly kill the worker running it. A non-nil error returned by
// callback itself is also wrapped and returned, with cancellation
// requested so the worker's context is not left dangling.
func (c *Controller) Execute(ctx context.Context, timeout time.Duration, callback func(ctx context.Context) error) error {
	if callback == nil {
		return fmt.Errorf("callback cannot be nil: %w", aerrors.ErrInvalidArgument)
	}
	if err := validation.Positive("timeout", timeout); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := c.executor.Submit(taskCtx, func(ctx context.Context) error {
		return callback(ctx)
	})
	if err != nil {
		return aerrors.NewThreadFrameworkError("failed to submit timed callback", err)
	}

	if err := h.Await(timeout); err != nil {
		cancel()
		if aerrors.IsTimeout(err) {
			return fmt.Errorf("callback did not finish within %s: %w", timeout, aerrors.ErrTimeout)
		}
		return aerrors.NewThreadFrameworkError("timed callback failed while waiting", err)
	}

	if err := h.Err(); err != nil {
		cancel()
		return aerrors.NewThreadFrameworkError("timed callback failed", err)
	}

	return nil
}
