package sgm

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forEachStripe splits [0, n) into contiguous stripes, one per CPU, and runs fn on
// each stripe concurrently. The first error cancels the remaining stripes.
func forEachStripe(ctx context.Context, n int, fn func(ctx context.Context, start, end int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	numWorkers := runtime.NumCPU()
	perWorker := (n + numWorkers - 1) / numWorkers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += perWorker {
		start, end := start, min(start+perWorker, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, start, end)
		})
	}
	return g.Wait()
}
