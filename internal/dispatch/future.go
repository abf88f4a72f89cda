package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an awaited action did not complete inside
// its time budget, commonly because the queue is saturated.
var ErrTimeout = errors.New("dispatch: timed out waiting for action")

// DefaultAwaitTimeout bounds how long async callers wait for the
// dispatcher goroutine to execute their closure.
const DefaultAwaitTimeout = 5 * time.Second

type result[T any] struct {
	val T
	err error
}

// Call posts fn to the dispatcher and blocks the caller until the
// dispatcher goroutine has executed it, the timeout elapses, or ctx is
// cancelled. Cancellation releases the waiting caller only: a closure
// that has already started on the dispatcher still runs to completion.
//
// A saturated queue fails the call immediately with ErrQueueFull rather
// than leaving the caller hanging.
func Call[T any](ctx context.Context, d *Dispatcher, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	// Buffered so the closure never blocks the dispatcher goroutine
	// when the caller has already given up.
	ch := make(chan result[T], 1)
	err := d.Post(func() {
		v, err := fn()
		ch <- result[T]{val: v, err: err}
	}, false)
	if err != nil {
		return zero, err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-t.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Fire posts fn without a completion signal, preferring drop-oldest so
// the action is never rejected while the dispatcher is running.
func (d *Dispatcher) Fire(fn func()) {
	_ = d.Post(fn, true)
}
