// Package executor implements the parallel execution substrate that drives
// ingestion and search: a CPU-bound pool, an I/O-bound pool, a cooperative
// pool, a pipeline DAG, and a backpressure-bounded batch processor. All of
// them are goroutine worker pools over channels; ProcessPool and
// ThreadPool differ only in their default sizing policy (CPU-bound vs
// I/O-bound width) and ThreadPool's added rate limiting, since goroutines
// are the one concurrency primitive everything here builds on.
package executor

import (
	"context"
	"runtime"
)

// Pool is the common sizing contract every concrete pool satisfies.
type Pool interface {
	Workers() int
}

// throttler is implemented by pools that enforce a per-second rate limit
// (ThreadPool); Map consults it before dispatching each item.
type throttler interface {
	Throttle(ctx context.Context)
}

// MapOptions configures a single Map call: retry budget and an optional
// progress callback.
type MapOptions struct {
	MaxRetries int
	ProgressCB func(BatchProgress)
}

// Map runs fn over items using pool's worker width, preserving input
// order in the output regardless of completion order. Items whose fn
// fails more than opts.MaxRetries times are
// dropped from the result (zero value in their slot) and counted as
// failures; their index is still reported via the progress tracker.
func Map[T, R any](ctx context.Context, p Pool, items []T, fn func(context.Context, T) (R, error), opts MapOptions) ([]R, []error) {
	n := len(items)
	results := make([]R, n)
	errs := make([]error, n)

	tracker := NewProgressTracker(n, opts.ProgressCB)

	workers := p.Workers()
	if workers <= 0 {
		workers = 1
	}
	if workers > n && n > 0 {
		workers = n
	}

	jobs := make(chan int)
	done := make(chan struct{})
	throttle, _ := p.(throttler)

	worker := func() {
		for idx := range jobs {
			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				tracker.MarkFailed()
				continue
			default:
			}
			if throttle != nil {
				throttle.Throttle(ctx)
			}
			tracker.MarkRunning()
			var lastErr error
			attempts := opts.MaxRetries + 1
			if attempts < 1 {
				attempts = 1
			}
			for attempt := 0; attempt < attempts; attempt++ {
				r, err := fn(ctx, items[idx])
				if err == nil {
					results[idx] = r
					lastErr = nil
					break
				}
				lastErr = err
			}
			if lastErr != nil {
				errs[idx] = lastErr
				tracker.MarkFailed()
			} else {
				tracker.MarkCompleted()
			}
		}
		done <- struct{}{}
	}

	for w := 0; w < workers; w++ {
		go worker()
	}
	go func() {
		for i := 0; i < n; i++ {
			jobs <- i
		}
		close(jobs)
	}()
	for w := 0; w < workers; w++ {
		<-done
	}

	return results, errs
}

func defaultProcessWorkers() int {
	cpus := runtime.NumCPU()
	w := cpus - 1
	if w < 2 {
		w = 2
	}
	return w
}

func defaultThreadWorkers() int {
	w := runtime.NumCPU() * 4
	if w > 64 {
		w = 64
	}
	return w
}
