package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Pool runs indexed jobs on a fixed number of worker goroutines.
type Pool struct {
	workers int
	logger  *slog.Logger
	active  atomic.Int32

	// onActive, when set, observes the busy worker count.
	onActive func(n int32)
}

// NewPool creates a pool of workers goroutines (at least one).
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Active returns the number of workers currently running a job.
func (p *Pool) Active() int32 { return p.active.Load() }

// Run calls fn once for every index in [0, n) and waits for all started
// jobs to return. Jobs not yet started when ctx is cancelled are skipped.
// It reports which indices ran.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) []bool {
	started := make([]bool, n)
	jobs := make(chan int)

	workers := p.workers
	if workers > n {
		workers = n
	}
	p.logger.Debug("starting worker pool", "workers", workers, "jobs", n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				started[i] = true
				p.track(1)
				fn(ctx, i)
				p.track(-1)
			}
		}(w)
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return started
}

func (p *Pool) track(delta int32) {
	n := p.active.Add(delta)
	if p.onActive != nil {
		p.onActive(n)
	}
}
