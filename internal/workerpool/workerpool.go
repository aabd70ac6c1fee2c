// Package workerpool bounds the concurrency of batch jobs (embedding,
// attachment annotation/geocode/cloud-backup queues) the way
// intelligencedev-manifold's fetch_tool.go bounds concurrent URL fetches:
// an errgroup.Group with SetLimit.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency caps background batch jobs at a small constant
// (§5/§8: "capped at a small constant"), scaled to the host but never more
// than 4 so a single vault never saturates a shared machine.
func DefaultConcurrency() int {
	n := runtime.GOMAXPROCS(0)
	if n > 4 {
		return 4
	}
	if n < 1 {
		return 1
	}
	return n
}

// Run calls fn(ctx, items[i]) for every item, at most concurrency at a time,
// and returns the first error encountered (others are still allowed to
// finish; errgroup cancels ctx on first error). item order has no bearing on
// job semantics here — every job commits its own row independently.
func Run[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) error) error {
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
