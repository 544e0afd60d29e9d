package util

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn over every input with at most workerLimit calls in
// flight and returns how many calls failed. Failures do not stop the rest.
func ForEach[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) (failed int) {
	if workerLimit <= 0 {
		workerLimit = 1
	}

	var n atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(workerLimit)
	for _, item := range inputs {
		g.Go(func() error {
			if ctx.Err() != nil || fn(ctx, item) != nil {
				n.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(n.Load())
}
