// Package machine implements the thread-machine controller, grounded in
// original_source/ThreadMachineController.java: the central entry point
// that resolves pools, wraps submissions with the event-listener adapter,
// and threads completed handles through the group latch.
package machine

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/common/rollingid"
	"github.com/masvboston/concurrent-aspects/pkg/common/validation"
	"github.com/masvboston/concurrent-aspects/pkg/latch"
	"github.com/masvboston/concurrent-aspects/pkg/listener"
	"github.com/masvboston/concurrent-aspects/pkg/pool"
	"golang.org/x/sync/errgroup"
)

// MachineListener observes pool lifecycle events. Implementations must
// not throw: any panic inside a hook is recovered and logged by the
// Controller, never propagated to the caller.
type MachineListener interface {
	BeforeCreatePool(poolName string)
	AfterCreatePool(poolName string)
	OnGetPool(poolName string)
}

// DefaultMachineListener is a no-op MachineListener.
type DefaultMachineListener struct{}

func (DefaultMachineListener) BeforeCreatePool(string) {}
func (DefaultMachineListener) AfterCreatePool(string)  {}
func (DefaultMachineListener) OnGetPool(string)        {}

var sentinelID rollingid.Generator

// Controller is the central dispatcher: it resolves or creates named
// bounded pools, always has one eagerly-created unbounded cached pool for
// non-poolable work, and wires every submission through the current
// listener.Listener and the group latch.
type Controller struct {
	mu       sync.Mutex
	shutdown bool
	pools    map[string]pool.Pool

	unboundedName string

	latch *latch.Latch

	eventListener   listener.Listener
	machineListener MachineListener
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithEventListener overrides the default thread-event listener.
func WithEventListener(l listener.Listener) Option {
	return func(c *Controller) {
		if l != nil {
			c.eventListener = l
		}
	}
}

// WithMachineListener overrides the default machine-event listener.
func WithMachineListener(l MachineListener) Option {
	return func(c *Controller) {
		if l != nil {
			c.machineListener = l
		}
	}
}

// New constructs a Controller with an eagerly-created unbounded cached
// pool. It does not register a process-exit shutdown hook itself; call
// InstallShutdownHook if this Controller should be drained automatically
// on process exit.
func New(opts ...Option) *Controller {
	c := &Controller{
		pools:           make(map[string]pool.Pool),
		latch:           latch.New(),
		eventListener:   listener.Default{},
		machineListener: DefaultMachineListener{},
		unboundedName:   fmt.Sprintf("unbounded-%d", sentinelID.Next()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pools[c.unboundedName] = pool.NewCached(c.unboundedName, pool.CachedConfig{})
	return c
}

func (c *Controller) checkShutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return fmt.Errorf("thread machine has been shut down: %w", aerrors.ErrIllegalState)
	}
	return nil
}

func (c *Controller) getOrCreatePool(poolName string) pool.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pools[poolName]; ok {
		safeCall(func() { c.machineListener.OnGetPool(poolName) })
		return p
	}

	safeCall(func() { c.machineListener.BeforeCreatePool(poolName) })
	p := pool.NewBounded(poolName, pool.BoundedConfig{})
	c.pools[poolName] = p
	safeCall(func() { c.machineListener.AfterCreatePool(poolName) })
	return p
}

// ExecuteInThread runs callback in a thread from a bounded pool (when
// poolable is true, under poolName) or from the unbounded cached pool
// (when poolable is false). When groupable is true and ctx carries an
// active thread group, the resulting handle is registered with it.
func (c *Controller) ExecuteInThread(ctx context.Context, poolable bool, poolName string, groupable bool, callback func(ctx context.Context) error) (*pool.Handle, error) {
	if err := c.checkShutdown(); err != nil {
		return nil, err
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil: %w", aerrors.ErrInvalidArgument)
	}

	var p pool.Pool
	if poolable {
		if err := validation.NotEmptyString("poolName", poolName); err != nil {
			return nil, err
		}
		p = c.getOrCreatePool(poolName)
	} else {
		c.mu.Lock()
		p = c.pools[c.unboundedName]
		c.mu.Unlock()
	}

	wrapped := c.wrapWithListener(pool.Task(callback))

	h, err := p.Submit(ctx, wrapped)
	if err != nil {
		return nil, err
	}

	if groupable {
		if err := c.latch.AddThreadToGroup(ctx, h); err != nil && !aerrors.IsIllegalState(err) {
			return h, err
		}
	}

	return h, nil
}

// wrapWithListener applies the thread-event listener's before/after/
// onException hooks around task, matching
// ThreadMachineRunnable.java's wrapping.
func (c *Controller) wrapWithListener(task pool.Task) pool.Task {
	return func(ctx context.Context) error {
		c.mu.Lock()
		l := c.eventListener
		c.mu.Unlock()

		proceed := true
		safeCall(func() { proceed = l.BeforeThread(task) })
		if !proceed {
			return nil
		}

		err := task(ctx)

		if err != nil {
			var surfaced error
			safeCall(func() { surfaced = l.OnException(task, err) })
			if surfaced == nil {
				return nil
			}
			return aerrors.NewThreadFrameworkError("task failed", surfaced)
		}

		safeCall(func() { l.AfterThread(task) })
		return nil
	}
}

// safeCall recovers and logs a panic from a listener hook so a misbehaving
// listener cannot take down a worker goroutine.
func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("machine: recovered from listener panic: %v", r)
		}
	}()
	fn()
}

// CreateThreadGroup pushes a new group onto ctx's stack and returns the
// context to use for subsequent calls on this chain.
func (c *Controller) CreateThreadGroup(ctx context.Context) (context.Context, error) {
	if err := c.checkShutdown(); err != nil {
		return ctx, err
	}
	return c.latch.CreateThreadGroup(ctx), nil
}

// AwaitCurrentThreadGroup waits for ctx's current thread group to finish,
// translating a timeout into an ErrTimeout-wrapped ThreadFrameworkError
// carrying the timeout value.
func (c *Controller) AwaitCurrentThreadGroup(ctx context.Context, timeout time.Duration) (int, error) {
	completed, err := c.latch.WaitForThreadsToFinish(ctx, timeout)
	if err != nil && aerrors.IsTimeout(err) {
		return completed, aerrors.NewThreadFrameworkError(fmt.Sprintf("timed out waiting for thread group after %s", timeout), err)
	}
	return completed, err
}

// Shutdown is idempotent. It marks the Controller shut down, then asks
// every pool to drain concurrently so no pool starts draining before all
// have been asked to stop, each bounded by its share of wait; a pool that
// fails to drain in time gets a forceful shutdown. It finally releases
// every thread group.
func (c *Controller) Shutdown(ctx context.Context, wait time.Duration) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true

	pools := make([]pool.Pool, 0, len(c.pools))
	for _, p := range c.pools {
		pools = append(pools, p)
	}
	c.mu.Unlock()

	if len(pools) == 0 {
		c.latch.ReleaseAll(ctx)
		return nil
	}
	budget := wait / time.Duration(len(pools))

	var g errgroup.Group
	for _, p := range pools {
		p := p
		g.Go(func() error {
			poolCtx, cancel := context.WithTimeout(ctx, budget)
			defer cancel()
			if err := p.Shutdown(poolCtx); err != nil {
				p.ShutdownNow()
			}
			return nil
		})
	}
	g.Wait()

	c.latch.ReleaseAll(ctx)
	return nil
}

// CheckForShutdown is the cooperative shutdown check: a thread-managed
// task calls it at a point where it is safe to abort, and gets back a
// dedicated shutdown error the group latch re-raises instead of wrapping,
// once the Controller has been asked to shut down.
func (c *Controller) CheckForShutdown() error {
	if c.IsShutdown() {
		return aerrors.NewShutdownError("thread machine is shutting down")
	}
	return nil
}

// Reset re-initializes the Controller after a Shutdown, with a fresh
// unbounded cached pool. It fails with ErrIllegalState unless the
// Controller is currently shut down.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.shutdown {
		return fmt.Errorf("cannot reset until shutdown has been issued: %w", aerrors.ErrIllegalState)
	}

	c.shutdown = false
	c.pools = make(map[string]pool.Pool)
	c.unboundedName = fmt.Sprintf("unbounded-%d", sentinelID.Next())
	c.pools[c.unboundedName] = pool.NewCached(c.unboundedName, pool.CachedConfig{})
	return nil
}

// IsShutdown reports the current shutdown state.
func (c *Controller) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// InstallShutdownHook registers a SIGINT/SIGTERM handler that calls
// Shutdown(wait) and logs (rather than returns) any failure. Go has no
// JVM-style shutdown hook run by the runtime itself, so this is the
// nearest idiomatic substitute: a background goroutine waiting on
// os/signal, the same pattern used by long-running network services for
// graceful termination. It is opt-in rather than installed
// automatically by New, since a library should not claim a process-wide
// signal handler behind its caller's back.
func (c *Controller) InstallShutdownHook(wait time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("machine: received signal %v, shutting down", sig)
		if err := c.Shutdown(context.Background(), wait); err != nil {
			log.Printf("machine: shutdown hook failed: %v", err)
		}
	}()
}
