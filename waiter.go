package kinetic

import (
	"context"
	"sync"
)

// waiter is a one-shot gate: it starts Unsignaled and transitions to
// Signaled exactly once. wait blocks until Signaled or the context is
// done (a context deadline bounds the wait). Used for drive-ready
// indication (§4.8) but general enough for any other one-shot
// readiness point.
type waiter struct {
	once sync.Once
	ch   chan struct{}
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan struct{})}
}

// signal transitions the waiter to Signaled. Idempotent: repeated calls
// after the first are no-ops.
func (w *waiter) signal() {
	w.once.Do(func() { close(w.ch) })
}

// signaled reports whether the waiter has already been signaled.
func (w *waiter) signaled() bool {
	select {
	case <-w.ch:
		return true
	default:
		return false
	}
}

// wait blocks until the waiter is signaled or ctx is done.
func (w *waiter) wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
