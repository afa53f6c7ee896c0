package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	aerrors "github.com/masvboston/concurrent-aspects/pkg/common/errors"
)

// Handle is a future-like reference to a submitted task: it can be
// cancelled, and awaited with a timeout, and it carries the task's
// eventual success or failure. It corresponds to the TaskHandle in the
// data model.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{done: make(chan struct{}), cancel: cancel}
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Cancel requests interruption of the task's context. The worker executing
// it is expected to cooperatively observe cancellation; Cancel never kills
// the worker goroutine outright.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done returns a channel that closes once the task has finished, whether
// by completing, failing, or being cancelled before it ever ran.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the task's result. It is only meaningful after Done is
// closed; calling it earlier returns nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Await blocks until the task finishes or timeout elapses, whichever comes
// first. A non-positive timeout waits indefinitely. On expiry it returns
// an ErrTimeout-wrapped error and leaves the task itself still running;
// callers that also want to interrupt the worker should call Cancel.
func (h *Handle) Await(timeout time.Duration) error {
	if timeout <= 0 {
		<-h.done
		return h.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.Err()
	case <-timer.C:
		return fmt.Errorf("task did not finish within %s: %w", timeout, aerrors.ErrTimeout)
	}
}
