// Package worker runs independent units of work on a bounded number of
// goroutines. The build pipeline uses it to read a table's source files
// in parallel.
package worker

import (
	"context"
	"sync"
)

// Map runs fn over every item on at most workers goroutines and returns
// the outputs in input order. The first error cancels the remaining
// work and is returned.
func Map[In, Out any](ctx context.Context, workers int, items []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}
	if len(items) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		index int
		item  In
	}
	jobs := make(chan job)

	out := make([]Out, len(items))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				result, err := fn(ctx, j.item)
				if err != nil {
					setErr(err)
					return
				}
				out[j.index] = result
			}
		}()
	}

	for i, item := range items {
		select {
		case <-ctx.Done():
		case jobs <- job{index: i, item: item}:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
