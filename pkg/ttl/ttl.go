// Package ttl provides a deadline-ordered collection whose entries expire
// after a per-insertion duration, sweeping expired entries on every read.
// pkg/autottl builds its self-draining collection on it. It is grounded
// in original_source/TimeToLiveCollection.java, with a
// container/heap priority queue standing in for java.util.concurrent's
// DelayQueue (the standard library has no delay-queue equivalent, and no
// example-pack dependency offers one either — see DESIGN.md).
package ttl

import (
	"container/heap"
	"fmt"
	"reflect"
	"sync"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
	"github.com/masvboston/concurrent-aspects/pkg/common/validation"
)

type entry[T comparable] struct {
	payload  T
	deadline time.Time
	idx      int
}

type itemHeap[T comparable] []*entry[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *itemHeap[T]) Push(x any) {
	e := x.(*entry[T])
	e.idx = len(*h)
	*h = append(*h, e)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Collection is a deadline-ordered container of distinct payloads, each
// tagged with an absolute deadline computed as now+ttl at insertion. It is
// safe for concurrent use.
type Collection[T comparable] struct {
	mu       sync.Mutex
	ttl      time.Duration
	h        itemHeap[T]
	index    map[T]*entry[T]
	onExpire func(T)
}

// New creates a Collection whose entries live for ttl. onExpire, if
// non-nil, is invoked once per payload the moment it is swept out by any
// read operation. ttl must be positive.
func New[T comparable](ttl time.Duration, onExpire func(T)) (*Collection[T], error) {
	if err := validation.Positive("ttl", ttl); err != nil {
		return nil, err
	}
	return &Collection[T]{
		ttl:      ttl,
		index:    make(map[T]*entry[T]),
		onExpire: onExpire,
	}, nil
}

func isNilPayload(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// sweepLocked removes and returns every entry whose deadline has passed,
// firing onExpire for each, in deadline order. Caller must hold mu.
func (c *Collection[T]) sweepLocked() []T {
	now := time.Now()
	var expired []T
	for c.h.Len() > 0 && !c.h[0].deadline.After(now) {
		e := heap.Pop(&c.h).(*entry[T])
		delete(c.index, e.payload)
		expired = append(expired, e.payload)
		if c.onExpire != nil {
			c.onExpire(e.payload)
		}
	}
	return expired
}

// Add inserts payload with a fresh deadline of now+ttl, replacing any
// existing entry for the same payload. It rejects a nil payload (when T is
// a pointer, interface, map, slice, chan, or func type).
func (c *Collection[T]) Add(payload T) error {
	if isNilPayload(payload) {
		return fmt.Errorf("payload cannot be nil: %w", aerrors.ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if e, ok := c.index[payload]; ok {
		e.deadline = time.Now().Add(c.ttl)
		heap.Fix(&c.h, e.idx)
		return nil
	}

	e := &entry[T]{payload: payload, deadline: time.Now().Add(c.ttl)}
	heap.Push(&c.h, e)
	c.index[payload] = e
	return nil
}

// AddAll inserts every payload in payloads and returns how many were
// added (a nil or empty slice adds nothing and returns 0).
func (c *Collection[T]) AddAll(payloads []T) (int, error) {
	added := 0
	for _, p := range payloads {
		if err := c.Add(p); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// Remove deletes payload's entry if present, returning true if it was
// found and removed.
func (c *Collection[T]) Remove(payload T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	e, ok := c.index[payload]
	if !ok {
		return false
	}
	heap.Remove(&c.h, e.idx)
	delete(c.index, payload)
	return true
}

// Contains reports whether payload has a live (unexpired) entry.
func (c *Collection[T]) Contains(payload T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	_, ok := c.index[payload]
	return ok
}

// Size returns the number of live entries after sweeping expired ones.
func (c *Collection[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.index)
}

// Clear discards every entry immediately without sweeping or firing
// onExpire, the one operation that bypasses the sweep-on-access rule.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.h = nil
	c.index = make(map[T]*entry[T])
}

// Items returns the live payloads in deadline order (soonest to expire
// first), after sweeping.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	clone := make(itemHeap[T], len(c.h))
	for i, e := range c.h {
		clone[i] = &entry[T]{payload: e.payload, deadline: e.deadline, idx: i}
	}

	result := make([]T, 0, len(clone))
	for clone.Len() > 0 {
		e := heap.Pop(&clone).(*entry[T])
		result = append(result, e.payload)
	}
	return result
}

// DrainExpired sweeps and returns whatever entries have expired since the
// last access, without requiring any other read. autottl uses this to
// shrink a collection on a timer rather than on reader activity.
func (c *Collection[T]) DrainExpired() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// TTL returns the configured time-to-live for new entries.
func (c *Collection[T]) TTL() time.Duration {
	return c.ttl
}
