package raibin

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// defaultWorkers returns max(1, min(NumCPU, 8)).
func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// runIndexed runs fn(i) for every i in [0, n) on at most workers
// goroutines. Results must be stored by index; the first error cancels
// the context passed to the remaining tasks and is returned.
//
// When failWhenBusy is set, submitting to a saturated pool returns
// ErrQueueFull instead of blocking; tasks already running are cancelled
// and their results discarded. A task that failed on its own before the
// pool gave up reports its error instead.
func runIndexed(ctx context.Context, n, workers int, failWhenBusy bool, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		task := func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		}
		if !failWhenBusy {
			g.Go(task)
			continue
		}
		if !g.TryGo(task) {
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if err := parent.Err(); err != nil {
				return err
			}
			return ErrQueueFull
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return parent.Err()
}
