package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// WorkerPoolDispatcher runs settlement attempts on a shared ants pool, so the
// number of concurrent gateway calls is bounded across all campaigns.
type WorkerPoolDispatcher struct {
	pool   *ants.Pool
	logger *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolDispatcher(config WorkerPoolConfig, logger *slog.Logger) (*WorkerPoolDispatcher, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolDispatcher{
		pool:   pool,
		logger: logger,
	}, nil
}

// Dispatch submits every task and blocks until the submitted ones finish.
// Tasks that could not be submitted are reported in the returned error.
func (d *WorkerPoolDispatcher) Dispatch(ctx context.Context, n int, task func(ctx context.Context, i int)) error {
	var (
		wg         sync.WaitGroup
		submitErrs []error
	)

	for i := 0; i < n; i++ {
		idx := i
		wg.Add(1)
		err := d.pool.Submit(func() {
			defer wg.Done()
			task(ctx, idx)
		})
		if err != nil {
			wg.Done()
			d.logger.Error("Failed to submit settlement attempt to worker pool", "index", idx, "error", err)
			submitErrs = append(submitErrs, err)
		}
	}

	wg.Wait()

	if len(submitErrs) > 0 {
		return fmt.Errorf("failed to submit %d of %d attempts: %w", len(submitErrs), n, errors.Join(submitErrs...))
	}
	return nil
}

// Shutdown gracefully shuts down the worker pool.
func (d *WorkerPoolDispatcher) Shutdown() {
	d.logger.Info("Shutting down worker pool", "running_workers", d.pool.Running())
	d.pool.Release()
}

// Running returns the number of running workers in the pool.
func (d *WorkerPoolDispatcher) Running() int {
	return d.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (d *WorkerPoolDispatcher) Capacity() int {
	return d.pool.Cap()
}

// InlineDispatcher runs tasks one after another on the calling goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(ctx context.Context, n int, task func(ctx context.Context, i int)) error {
	for i := 0; i < n; i++ {
		task(ctx, i)
	}
	return nil
}
