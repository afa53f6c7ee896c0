package latch

import (
	"context"
	"testing"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/pool"
)

func TestAddThreadToGroupFailsWithoutGroup(t *testing.T) {
	l := New()
	h := fakeHandle(nil)
	if err := l.AddThreadToGroup(context.Background(), h); !aerrors.IsIllegalState(err) {
		t.Fatalf("expected illegal-state error, got %v", err)
	}
}

func TestCreateAddWaitHappyPath(t *testing.T) {
	l := New()
	ctx := l.CreateThreadGroup(context.Background())

	p := pool.NewBounded("latch-test-1", pool.BoundedConfig{Core: 2, Max: 2, QueueCapacity: 4, IdleTTL: time.Second})
	defer p.Shutdown(context.Background())

	for i := 0; i < 3; i++ {
		h, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
		if err != nil {
			t.Fatal(err)
		}
		if err := l.AddThreadToGroup(ctx, h); err != nil {
			t.Fatal(err)
		}
	}

	if got := l.NumberOfThreads(ctx); got != 3 {
		t.Fatalf("expected 3 registered threads, got %d", got)
	}

	completed, err := l.WaitForThreadsToFinish(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if completed != 3 {
		t.Fatalf("expected all 3 to complete, got %d", completed)
	}
	if got := l.NumberOfThreadGroups(ctx); got != 0 {
		t.Fatalf("expected the group to be popped, got %d remaining", got)
	}
}

func TestWaitForThreadsToFinishStopsAtFirstTimeout(t *testing.T) {
	l := New()
	ctx := l.CreateThreadGroup(context.Background())

	p := pool.NewBounded("latch-test-2", pool.BoundedConfig{Core: 2, Max: 2, QueueCapacity: 4, IdleTTL: time.Second})
	defer p.Shutdown(context.Background())

	fast, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	slow, err := p.Submit(context.Background(), func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := l.AddThreadToGroup(ctx, fast); err != nil {
		t.Fatal(err)
	}
	if err := l.AddThreadToGroup(ctx, slow); err != nil {
		t.Fatal(err)
	}

	completed, err := l.WaitForThreadsToFinish(ctx, 20*time.Millisecond)
	if !aerrors.IsTimeout(err) {
		t.Fatalf("expected a timeout error, got %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected the fast handle to have completed first, got %d", completed)
	}
}

func TestReleaseAllDiscardsWithoutCancelling(t *testing.T) {
	l := New()
	ctx := l.CreateThreadGroup(context.Background())
	l.CreateThreadGroup(ctx)

	p := pool.NewBounded("latch-test-3", pool.BoundedConfig{Core: 1, Max: 1, QueueCapacity: 4, IdleTTL: time.Second})
	defer p.Shutdown(context.Background())

	h, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := l.AddThreadToGroup(ctx, h); err != nil {
		t.Fatal(err)
	}

	released := l.ReleaseAll(ctx)
	if released != 1 {
		t.Fatalf("expected 1 released handle, got %d", released)
	}
	if got := l.NumberOfThreadGroups(ctx); got != 0 {
		t.Fatalf("expected no groups left, got %d", got)
	}
}

// fakeHandle builds a *pool.Handle that is already finished with err, for
// tests that only need a handle's identity and don't run it through a
// real pool.
func fakeHandle(err error) *pool.Handle {
	p := pool.NewBounded("latch-fakehandle", pool.BoundedConfig{Core: 1, Max: 1, QueueCapacity: 1, IdleTTL: time.Second})
	h, sErr := p.Submit(context.Background(), func(ctx context.Context) error { return err })
	if sErr != nil {
		panic(sErr)
	}
	h.Await(time.Second)
	return h
}
