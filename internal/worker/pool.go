// Package worker runs indexing jobs with bounded concurrency.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work. Returning a non-nil error stops the pool from
// handing out further jobs when the pool runs in fail-fast mode.
type Job func(context.Context) error

// Pool feeds jobs to a fixed number of goroutines.
type Pool struct {
	workers  int
	failFast bool

	jobs   chan Job
	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context

	mu       sync.Mutex
	firstErr error
}

// New starts a pool. With failFast set, the first job error cancels the
// context passed to the remaining jobs and is returned by Wait.
func New(ctx context.Context, workers int, failFast bool) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		workers:  workers,
		failFast: failFast,
		jobs:     make(chan Job),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if p.ctx.Err() != nil {
					continue
				}
				if err := job(p.ctx); err != nil && p.failFast {
					p.fail(err)
				}
			}
		}()
	}
	return p
}

func (p *Pool) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstErr == nil {
		p.firstErr = err
		p.cancel()
	}
}

// Submit queues job, blocking until a worker takes it. It returns false once
// the pool's context is done.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		return true
	}
}

// Wait stops accepting jobs, waits for running ones and returns the first
// fail-fast error, or the parent context's error.
func (p *Pool) Wait() error {
	close(p.jobs)
	p.wg.Wait()

	p.mu.Lock()
	err := p.firstErr
	p.mu.Unlock()

	ctxErr := p.ctx.Err()
	p.cancel()
	if err != nil {
		return err
	}
	return ctxErr
}
