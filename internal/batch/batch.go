// Package batch runs a function over a slice in bounded-concurrency chunks
// with a pacing delay between chunks.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// pause is the inter-chunk delay primitive; replaced in tests.
var pause = func(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Run partitions items into consecutive chunks of size concurrency and
// invokes fn on every item of a chunk concurrently, waiting for the whole
// chunk to settle before starting the next. Between chunks (never after the
// last) it sleeps delay as a pacing control against remote rate limits.
//
// The output preserves input order. fn must fold its own failures into R;
// Run performs no retries and never short-circuits.
func Run[T, R any](ctx context.Context, items []T, concurrency int, delay time.Duration, fn func(context.Context, T) R) []R {
	if concurrency <= 0 {
		concurrency = 10
	}

	results := make([]R, len(items))
	for start := 0; start < len(items); start += concurrency {
		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = fn(ctx, items[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) {
			pause(ctx, delay)
		}
	}

	return results
}
