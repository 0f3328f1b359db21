// Package pool implements a bounded pull-based worker pool. Every stage
// that fans out into external subprocesses (scene detection, frame
// extraction, refinement, OCR) runs through it, so fan-out never exceeds
// a fixed number of live processes.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result pairs one task's output with its error. Failures stay local to
// their slot; the pool never cancels sibling tasks on error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over tasks with at most workers concurrent executions and
// returns one result slot per task, in task order. Workers pull the next
// index from a shared cursor, so completion order is unspecified while
// slot order is stable; each worker writes only its own slots. A
// cancelled context stops workers from starting further tasks, and
// unstarted slots carry the context error.
func Map[T, R any](ctx context.Context, workers int, tasks []T, fn func(ctx context.Context, index int, task T) (R, error)) []Result[R] {
	results := make([]Result[R], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	workers = min(max(workers, 1), len(tasks))

	var cursor atomic.Int64
	cursor.Store(-1)

	var g errgroup.Group
	for n := 0; n < workers; n++ {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1))
				if idx >= len(tasks) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					continue
				}
				value, err := fn(ctx, idx, tasks[idx])
				results[idx] = Result[R]{Value: value, Err: err}
			}
		})
	}
	// Workers always return nil; Wait is used purely as a join point.
	_ = g.Wait()

	return results
}

// Succeeded returns how many result slots completed without error.
func Succeeded[R any](results []Result[R]) int {
	n := 0
	for i := range results {
		if results[i].Err == nil {
			n++
		}
	}
	return n
}
