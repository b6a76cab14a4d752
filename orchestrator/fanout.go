package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"reelsmith/config"
)

// itemResult pairs one fan-out item's output with its error
type itemResult[T any] struct {
	out T
	err error
}

// runFanout runs fn once per index with bounded concurrency and returns the
// results in input order. Item failures are captured per slot, never
// propagated: every item runs regardless of how its siblings fare.
func runFanout[T any](ctx context.Context, n int, fn func(ctx context.Context, i int) (T, error)) []itemResult[T] {
	results := make([]itemResult[T], n)

	g := new(errgroup.Group)
	g.SetLimit(config.MaxFanoutConcurrency)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i].out, results[i].err = fn(ctx, i)
			return nil
		})
	}
	g.Wait()

	return results
}

// withRetry retries a flaky external call with doubling backoff. The last
// attempt's output is returned even on failure so the per-call cost it
// carries can still be persisted.
func withRetry[T any](ctx context.Context, backoff time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	var err error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if attempt == config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return out, err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return out, err
}
