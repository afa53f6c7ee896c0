package runtimer

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// job carries a pointer field so the runtime never places it in a shared
// tiny-allocator block, where another live object (such as a test's tick
// counter) would keep it reachable after the test drops it.
type job struct {
	id   int
	name *string
}

func TestAddRunsAfterDelayThenEveryPeriod(t *testing.T) {
	c := New[string]()
	j := &job{id: 1}

	var ticks int32
	inserted, err := Add(c, j, "poll", time.Millisecond, 5*time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("expected first Add to create a timer")
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&ticks) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&ticks) < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks)
	}

	if _, err := Stop(c, j, "poll"); err != nil {
		t.Fatal(err)
	}
}

func TestAddOnExistingPairRunsSynchronously(t *testing.T) {
	c := New[string]()
	j := &job{id: 1}

	if _, err := Add(c, j, "poll", time.Hour, time.Hour, func() {}); err != nil {
		t.Fatal(err)
	}

	var ranSynchronously bool
	inserted, err := Add(c, j, "poll", time.Hour, time.Hour, func() { ranSynchronously = true })
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("expected second Add for the same pair to report no new timer")
	}
	if !ranSynchronously {
		t.Fatal("expected callback to run synchronously when a timer is already registered")
	}

	Stop(c, j, "poll")
}

func TestAddRejectsBadArguments(t *testing.T) {
	c := New[string]()
	j := &job{id: 1}

	if _, err := Add[job](c, nil, "poll", time.Second, time.Second, func() {}); err == nil {
		t.Fatal("expected error for nil instance")
	}
	if _, err := Add(c, j, "poll", -time.Second, time.Second, func() {}); err == nil {
		t.Fatal("expected error for negative delay")
	}
	if _, err := Add(c, j, "poll", time.Second, 0, func() {}); err == nil {
		t.Fatal("expected error for non-positive period")
	}
	if _, err := Add(c, j, "poll", time.Second, time.Second, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestTimerSelfTerminatesWhenInstanceCollected(t *testing.T) {
	c := New[string]()

	var ticks int32
	func() {
		j := &job{id: 1}
		if _, err := Add(c, j, "poll", time.Millisecond, 2*time.Millisecond, func() {
			atomic.AddInt32(&ticks, 1)
		}); err != nil {
			t.Fatal(err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	stable := atomic.LoadInt32(&ticks)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&ticks) != stable {
		t.Fatalf("expected timer to have stopped ticking after the instance was collected, went from %d to %d", stable, ticks)
	}
}

func TestStopOnUnregisteredPairIsNoOp(t *testing.T) {
	c := New[string]()
	j := &job{id: 1}

	stopped, err := Stop(c, j, "poll")
	if err != nil {
		t.Fatal(err)
	}
	if stopped {
		t.Fatal("expected Stop on an unregistered pair to report false")
	}
}
