package modelstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// TrainingPool runs CPU-bound training jobs on at most Workers goroutines so request handlers only wait.
type TrainingPool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewTrainingPool returns a pool with the given concurrency (minimum 1).
func NewTrainingPool(workers int) *TrainingPool {
	if workers < 1 {
		workers = 1
	}
	return &TrainingPool{sem: semaphore.NewWeighted(int64(workers))}
}

// Run blocks until job has finished or ctx is done. A job that already started keeps its slot until it returns.
func (p *TrainingPool) Run(ctx context.Context, job func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("modelstore: wait for training slot: %w", err)
	}
	done := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		done <- job()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every started job has returned.
func (p *TrainingPool) Wait() { p.wg.Wait() }
