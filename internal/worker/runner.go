package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner manages a set of workers, cancelling all on first error.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run starts all workers in parallel. It blocks until all workers finish.
// If any worker returns a non-nil error, the context is cancelled and
// the first error is returned, prefixed with the worker's name.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := w.Name()
		slog.Info("worker started", "worker", name)
		g.Go(func() error {
			err := w.Run(ctx)
			switch {
			case err == nil, errors.Is(err, context.Canceled):
				slog.Info("worker stopped", "worker", name)
				return nil
			default:
				slog.Error("worker failed", "worker", name, "error", err)
				return fmt.Errorf("%s: %w", name, err)
			}
		})
	}
	return g.Wait()
}
