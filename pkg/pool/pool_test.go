package pool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDefaultCoreIsCappedAtDefaultInit(t *testing.T) {
	want := runtime.NumCPU()
	if want > DefaultInit {
		want = DefaultInit
	}
	if got := defaultCore(); got != want {
		t.Fatalf("defaultCore() = %d, want min(DefaultInit, NumCPU()) = %d", got, want)
	}
}

func TestDefaultMaxHasAFloorAboveDefaultInit(t *testing.T) {
	want := runtime.NumCPU() + 1
	if want < DefaultInit+1 {
		want = DefaultInit + 1
	}
	if got := defaultMax(); got != want {
		t.Fatalf("defaultMax() = %d, want %d", got, want)
	}
}

func TestBoundedPoolWithZeroValueConfigUsesDefaultSizing(t *testing.T) {
	p := NewBounded("t0", BoundedConfig{})
	if got, want := p.ActiveWorkers(), defaultCore(); got != want {
		t.Fatalf("expected %d core workers from a zero-value BoundedConfig, got %d", want, got)
	}
}

func TestBoundedPoolRunsSubmittedTasks(t *testing.T) {
	p := NewBounded("t1", BoundedConfig{Core: 1, Max: 2, QueueCapacity: 4, IdleTTL: time.Second})

	var ran int32
	h, err := p.Submit(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Await(time.Second); err != nil {
		t.Fatal(err)
	}
	if ran != 1 {
		t.Fatalf("expected task to run once, ran %d", ran)
	}
}

func TestBoundedPoolPropagatesTaskError(t *testing.T) {
	p := NewBounded("t2", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 1, IdleTTL: time.Second})

	wantErr := errors.New("boom")
	h, err := p.Submit(context.Background(), func(ctx context.Context) error { return wantErr })
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Await(time.Second); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped boom error, got %v", err)
	}
}

func TestBoundedPoolCallerRunsUnderSaturation(t *testing.T) {
	p := NewBounded("t3", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 1, IdleTTL: time.Second})

	block := make(chan struct{})
	release := make(chan struct{})
	if _, err := p.Submit(context.Background(), func(ctx context.Context) error {
		close(block)
		<-release
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	<-block

	// Fill the one-slot queue.
	if _, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	callerGoroutine := make(chan bool, 1)
	go func() {
		_, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
		callerGoroutine <- err == nil
	}()

	select {
	case ok := <-callerGoroutine:
		if !ok {
			t.Fatal("expected caller-runs submit to succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("expected caller-runs submit to return promptly without a free worker")
	}

	close(release)
}

func TestBoundedPoolRejectsAfterShutdown(t *testing.T) {
	p := NewBounded("t4", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 1, IdleTTL: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected submit after shutdown to fail")
	}
}

func TestCachedPoolReusesIdleWorker(t *testing.T) {
	p := NewCached("c1", CachedConfig{IdleTTL: 2 * time.Second})

	h1, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := h1.Await(time.Second); err != nil {
		t.Fatal(err)
	}

	// Give the worker time to return itself to the idle pool.
	time.Sleep(20 * time.Millisecond)
	if got := p.ActiveWorkers(); got != 1 {
		t.Fatalf("expected one recycled worker, got %d", got)
	}

	h2, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := h2.Await(time.Second); err != nil {
		t.Fatal(err)
	}
	if got := p.ActiveWorkers(); got != 1 {
		t.Fatalf("expected the second submit to reuse the existing worker, got %d workers", got)
	}
}

func TestCachedPoolWorkerExitsAfterIdleTTL(t *testing.T) {
	p := NewCached("c2", CachedConfig{IdleTTL: 20 * time.Millisecond})

	h, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Await(time.Second); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for p.ActiveWorkers() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := p.ActiveWorkers(); got != 0 {
		t.Fatalf("expected idle worker to exit after its TTL, still have %d", got)
	}
}

func TestBoundedPoolShutdownNowCancelsInFlightTask(t *testing.T) {
	p := NewBounded("t6", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 1, IdleTTL: time.Second})

	started := make(chan struct{})
	h, err := p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	p.ShutdownNow()

	if err := h.Await(time.Second); err == nil {
		t.Fatal("expected the in-flight task's context to be cancelled by ShutdownNow")
	}
}

func TestCachedPoolShutdownNowCancelsInFlightTask(t *testing.T) {
	p := NewCached("c3", CachedConfig{IdleTTL: time.Second})

	started := make(chan struct{})
	h, err := p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	p.ShutdownNow()

	if err := h.Await(time.Second); err == nil {
		t.Fatal("expected the in-flight task's context to be cancelled by ShutdownNow")
	}
}

func TestBoundedPoolReportsCompletedAndFailedMetrics(t *testing.T) {
	p := NewBounded("metrics-bounded", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 4, IdleTTL: time.Second})
	m := metricsFor("metrics-bounded")

	wantErr := errors.New("boom")
	h1, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := h1.Await(time.Second); err != nil {
		t.Fatal(err)
	}

	h2, err := p.Submit(context.Background(), func(ctx context.Context) error { return wantErr })
	if err != nil {
		t.Fatal(err)
	}
	if err := h2.Await(time.Second); !errors.Is(err, wantErr) {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.completed.WithLabelValues("metrics-bounded")); got != 1 {
		t.Fatalf("expected 1 completed task, got %v", got)
	}
	if got := testutil.ToFloat64(m.failed.WithLabelValues("metrics-bounded")); got != 1 {
		t.Fatalf("expected 1 failed task, got %v", got)
	}
}

func TestBoundedPoolReportsQueuedMetric(t *testing.T) {
	p := NewBounded("metrics-queued", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 4, IdleTTL: time.Second})
	m := metricsFor("metrics-queued")

	block := make(chan struct{})
	release := make(chan struct{})
	if _, err := p.Submit(context.Background(), func(ctx context.Context) error {
		close(block)
		<-release
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	<-block

	if _, err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.queued.WithLabelValues("metrics-queued")); got != 1 {
		t.Fatalf("expected 1 queued task while the sole worker is busy, got %v", got)
	}

	close(release)
}

func TestHandleAwaitTimesOut(t *testing.T) {
	p := NewBounded("t5", BoundedConfig{Core: 1, Max: 1, QueueCapacity: 1, IdleTTL: time.Second})

	h, err := p.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.Await(10 * time.Millisecond); err == nil {
		t.Fatal("expected Await to time out while the task is still blocked")
	}
	h.Cancel()
	if err := h.Await(time.Second); err == nil {
		t.Fatal("expected the cancelled task to surface an error")
	}
}
