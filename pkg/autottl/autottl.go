// Package autottl implements the auto-expiring collection described in
// original_source/TimeToLiveCollection.java's self-sweeping variant: a
// ttl.Collection that registers itself with a runtimer.Controller at
// construction so it shrinks on a periodic timer instead of relying on
// readers to trigger the sweep.
package autottl

import (
	"fmt"
	"time"
	"weak"

	"github.com/masvboston/concurrent-aspects/pkg/runtimer"
	"github.com/masvboston/concurrent-aspects/pkg/ttl"
)

// attr distinguishes this package's timer registrations within a shared
// runtimer.Controller from any other attribute a caller might register
// against the same *Collection instance.
type attr struct{}

// Collection wraps a ttl.Collection and owns the periodic timer that
// drains it. Every read/write operation delegates straight through;
// DrainExpired is called on the timer goroutine at interval = ttl.
type Collection[T comparable] struct {
	*ttl.Collection[T]
	controller *runtimer.Controller[attr]
}

// New creates a Collection whose entries live for duration ttlDur and
// registers a periodic timer, at the same interval, that drains expired
// entries even without reader activity. onExpire, if non-nil, fires once
// per payload swept by either a reader or the timer.
//
// The returned Collection must not be garbage collected while its timer
// is still wanted: the timer holds only a weak reference to it (see
// runtimer.Add) and self-terminates once the Collection becomes
// unreachable, so callers that need the background sweep to keep running
// must keep a live reference to the returned value for as long as that
// matters.
func New[T comparable](ttlDur time.Duration, onExpire func(T)) (*Collection[T], error) {
	inner, err := ttl.New(ttlDur, onExpire)
	if err != nil {
		return nil, err
	}

	c := &Collection[T]{
		Collection: inner,
		controller: runtimer.New[attr](),
	}

	// wp, not c, is what the timer callback closes over: closing over c
	// directly would keep it reachable forever, defeating runLoop's own
	// wp.Value() == nil self-termination check in runtimer, since that
	// check only ever sees the instance unreachable once every *other*
	// strong reference is gone too.
	wp := weak.Make(c)
	if _, err := runtimer.Add(c.controller, c, attr{}, ttlDur, ttlDur, func() {
		if self := wp.Value(); self != nil {
			self.Collection.DrainExpired()
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to register the drain timer: %w", err)
	}

	return c, nil
}

// StopDraining cancels the background sweep early. It is idempotent:
// calling it again once the timer has already been stopped is a no-op.
func (c *Collection[T]) StopDraining() error {
	_, err := runtimer.Stop(c.controller, c, attr{})
	return err
}
