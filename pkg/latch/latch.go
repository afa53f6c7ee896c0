// Package latch implements the thread-group latch, grounded in
// original_source/ThreadGroupLatch.java: a per-caller LIFO stack of
// groups of task handles, letting a caller spawn children and block until
// they all finish.
//
// The original keyed its stack off a ThreadLocal, since a Java thread
// carries implicit call-stack-scoped storage. Go goroutines have no such
// storage, so the stack lives on a context.Context value instead:
// CreateThreadGroup returns the context callers must pass to every
// subsequent latch call (and to any goroutine they spawn that should
// register into the same group), which is the idiomatic Go substitute for
// task-local storage described in the design notes.
package latch

import (
	"context"
	"fmt"
	"sync"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/pool"
)

type ctxKey struct{}

type group struct {
	mu      sync.Mutex
	handles []*pool.Handle
}

type stack struct {
	mu     sync.Mutex
	groups []*group
}

// Latch has no state of its own; every method takes the context that
// carries (or will be made to carry) the caller's group stack.
type Latch struct{}

// New returns a ready-to-use Latch.
func New() *Latch { return &Latch{} }

func stackFrom(ctx context.Context) (*stack, bool) {
	s, ok := ctx.Value(ctxKey{}).(*stack)
	return s, ok
}

// CreateThreadGroup pushes a new empty group onto the caller's stack,
// creating the stack on first use, and returns the context to use for
// every subsequent call on this same logical call chain.
func (*Latch) CreateThreadGroup(ctx context.Context) context.Context {
	s, ok := stackFrom(ctx)
	if !ok {
		s = &stack{}
		ctx = context.WithValue(ctx, ctxKey{}, s)
	}
	s.mu.Lock()
	s.groups = append(s.groups, &group{})
	s.mu.Unlock()
	return ctx
}

// AddThreadToGroup appends handle to the top group of ctx's stack. It
// fails with ErrIllegalState if ctx has no active group.
func (*Latch) AddThreadToGroup(ctx context.Context, handle *pool.Handle) error {
	s, ok := stackFrom(ctx)
	if !ok {
		return fmt.Errorf("no active thread group in context: %w", aerrors.ErrIllegalState)
	}
	s.mu.Lock()
	if len(s.groups) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no active thread group in context: %w", aerrors.ErrIllegalState)
	}
	top := s.groups[len(s.groups)-1]
	s.mu.Unlock()

	top.mu.Lock()
	top.handles = append(top.handles, handle)
	top.mu.Unlock()
	return nil
}

// WaitForThreadsToFinish pops the top group from ctx's stack and awaits
// each of its handles in insertion order, each bounded by timeout. It
// returns the number that completed before any single handle exceeded
// its wait. The first handle to time out stops the wait and surfaces an
// ErrTimeout-wrapped error. A handle whose failure cause is a shutdown
// signal re-raises that signal as-is; any other failure is wrapped into a
// ThreadFrameworkError. Cancellation of ctx itself while waiting is
// treated as an interruption and also wrapped into a ThreadFrameworkError.
func (*Latch) WaitForThreadsToFinish(ctx context.Context, timeout time.Duration) (int, error) {
	s, ok := stackFrom(ctx)
	if !ok {
		return 0, fmt.Errorf("no active thread group in context: %w", aerrors.ErrIllegalState)
	}

	s.mu.Lock()
	if len(s.groups) == 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("no active thread group in context: %w", aerrors.ErrIllegalState)
	}
	top := s.groups[len(s.groups)-1]
	s.groups = s.groups[:len(s.groups)-1]
	s.mu.Unlock()

	top.mu.Lock()
	handles := top.handles
	top.mu.Unlock()

	completed := 0
	for _, h := range handles {
		if err := awaitHandle(ctx, h, timeout); err != nil {
			switch {
			case aerrors.IsTimeout(err):
				return completed, err
			case aerrors.IsShutdown(err):
				return completed, err
			default:
				return completed, aerrors.NewThreadFrameworkError("a thread in the group failed", err)
			}
		}
		completed++
	}
	return completed, nil
}

func awaitHandle(ctx context.Context, h *pool.Handle, timeout time.Duration) error {
	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		return fmt.Errorf("interrupted while waiting for a thread group: %w", ctx.Err())
	case <-timerC:
		return fmt.Errorf("thread group wait exceeded %s: %w", timeout, aerrors.ErrTimeout)
	}
}

// ReleaseAll discards the entire stack carried by ctx and returns the
// total number of handles that were released, across every group. It
// does not cancel the released handles.
func (*Latch) ReleaseAll(ctx context.Context) int {
	s, ok := stackFrom(ctx)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, g := range s.groups {
		g.mu.Lock()
		total += len(g.handles)
		g.mu.Unlock()
	}
	s.groups = nil
	return total
}

// NumberOfThreadGroups reports how many groups are on ctx's stack.
func (*Latch) NumberOfThreadGroups(ctx context.Context) int {
	s, ok := stackFrom(ctx)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}

// NumberOfThreads reports the total number of handles across every group
// on ctx's stack.
func (*Latch) NumberOfThreads(ctx context.Context) int {
	s, ok := stackFrom(ctx)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, g := range s.groups {
		g.mu.Lock()
		total += len(g.handles)
		g.mu.Unlock()
	}
	return total
}
