// Package parallel runs independent jobs with bounded concurrency. It is
// used by batch jobs such as fetching many sales histories; the forecasting
// core itself never spawns goroutines.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every index in [0, items) with at most limit calls in
// flight. limit <= 0 means runtime.NumCPU(). The first error cancels the
// context passed to the remaining calls and is returned.
func ForEach(ctx context.Context, items, limit int, fn func(ctx context.Context, i int) error) error {
	if items == 0 {
		return nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	if limit > items {
		limit = items
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < items; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ForEachWithThreshold runs sequentially when items <= threshold.
func ForEachWithThreshold(ctx context.Context, items, threshold, limit int, fn func(ctx context.Context, i int) error) error {
	if items <= threshold {
		for i := 0; i < items; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}
	return ForEach(ctx, items, limit, fn)
}
