package autottl

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"
	"weak"
)

func TestEntryExpiresViaBackgroundTimerWithoutReaders(t *testing.T) {
	var expired atomic.Int32
	c, err := New(30*time.Millisecond, func(v string) { expired.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer c.StopDraining()

	if err := c.Add("a"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if expired.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if expired.Load() == 0 {
		t.Fatal("expected the background timer to drain the expired entry without any reader")
	}
}

func TestCollectionStillBehavesLikeATTLCollection(t *testing.T) {
	c, err := New[string](time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.StopDraining()

	if err := c.Add("x"); err != nil {
		t.Fatal(err)
	}
	if !c.Contains("x") {
		t.Fatal("expected x to be present")
	}
	if got := c.Size(); got != 1 {
		t.Fatalf("expected size 1, got %d", got)
	}
	if !c.Remove("x") {
		t.Fatal("expected Remove to report removal")
	}
}

func TestStopDrainingIsIdempotent(t *testing.T) {
	c, err := New[string](50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StopDraining(); err != nil {
		t.Fatal(err)
	}
	if err := c.StopDraining(); err != nil {
		t.Fatalf("expected a second StopDraining to be a no-op, got %v", err)
	}
}

func TestCollectionIsCollectedDespiteItsOwnBackgroundTimer(t *testing.T) {
	var wp weak.Pointer[Collection[string]]

	func() {
		c, err := New(2*time.Millisecond, func(string) {})
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Add("a"); err != nil {
			t.Fatal(err)
		}
		wp = weak.Make(c)

		// Let the timer tick at least once before c drops out of scope, so
		// this exercises a callback that has actually run, not merely one
		// that was registered and never fired.
		time.Sleep(20 * time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for wp.Value() != nil && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	if wp.Value() != nil {
		t.Fatal("expected the collection to become unreachable once its only external reference was dropped; the timer callback must be holding a strong reference to it")
	}
}

func TestNewRejectsNonPositiveTTL(t *testing.T) {
	if _, err := New[string](0, nil); err == nil {
		t.Fatal("expected an error for a non-positive ttl")
	}
}
