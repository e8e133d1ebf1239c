// Package guard implements the fail-open policy shared by the safety gate,
// the intent classifier fallback, and other provider calls: attempt the
// operation under a deadline, otherwise proceed with a default.
package guard

import (
	"context"
	"time"
)

// Attempt runs fn under a wall-clock deadline. It returns fn's value and true
// when fn completes in time without error; otherwise it returns fallback and
// false. On timeout the pending fn is abandoned — its eventual result is
// discarded, fn only observes its context being cancelled.
func Attempt[T any](ctx context.Context, timeout time.Duration, fallback T, fn func(context.Context) (T, error)) (T, bool) {
	type outcome struct {
		value T
		err   error
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(attemptCtx)
		ch <- outcome{value: v, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return fallback, false
		}
		return out.value, true
	case <-attemptCtx.Done():
		return fallback, false
	}
}
