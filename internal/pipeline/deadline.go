// Package pipeline implements the deadline-bounded stage executor and
// the fetch/transform/store processing pipeline.
package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by RunWithDeadline when the timer settles before
// the task does. It is always classified as non-retryable: a timeout is a
// worker-protection policy, not a transient fault.
var ErrTimeout = errors.New("deadline exceeded")

// RunWithDeadline races task against a wall-clock timer of d. Whichever
// settles first wins. On timeout it returns ErrTimeout immediately without
// waiting for task to finish; the context passed to task is cancelled so a
// well-behaved task can stop doing work, but the goroutine running task is
// never forcibly killed and the caller MUST NOT read taskResult after a
// timeout — task keeps writing into a buffered channel that nothing reads
// again, so the goroutine can still exit on its own instead of leaking
// forever once the underlying call respects ctx.
func RunWithDeadline[T any](ctx context.Context, d time.Duration, task func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	result := make(chan taskOutcome[T], 1)
	go func() {
		v, err := task(ctx)
		result <- taskOutcome[T]{v: v, err: err}
	}()

	select {
	case out := <-result:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ErrTimeout
	}
}

type taskOutcome[T any] struct {
	v   T
	err error
}
