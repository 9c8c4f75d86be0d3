package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

var (
	// ErrPoolClosed is returned by Submit after Close
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrJobPanicked wraps a panic recovered from a job
	ErrJobPanicked = errors.New("job panicked")
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// PanicResult is delivered in place of a job's own result when it panics
type PanicResult struct {
	Job Job
	Err error
}

// GetError returns the wrapped panic
func (r *PanicResult) GetError() error {
	return r.Err
}

// Pool runs jobs on a bounded set of goroutines and streams their results.
// Results must be drained while jobs are being submitted.
type Pool struct {
	workers    int
	pool       *ants.Pool
	results    chan Result
	inflight   sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPool creates a pool with the given number of workers (at least one).
// Jobs run with a context derived from ctx that also ends on Close.
func NewPool(ctx context.Context, workers int) (*Pool, error) {
	if workers <= 0 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create ants pool: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		pool:       pool,
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}, nil
}

// Workers returns the configured width
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues a job. It blocks while every worker is busy.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.inflight.Add(1)
	err := p.pool.Submit(func() {
		defer p.inflight.Done()
		p.results <- p.execute(job)
	})
	if err != nil {
		p.inflight.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return fmt.Errorf("submit job: %w", err)
	}
	return nil
}

// execute runs a job, converting a panic into a PanicResult
func (p *Pool) execute(job Job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = &PanicResult{Job: job, Err: fmt.Errorf("%w: %v", ErrJobPanicked, r)}
		}
	}()
	return job.Execute(p.ctx)
}

// Results streams job results. The channel is closed by Close.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting jobs, waits for in-flight jobs to deliver their
// results and closes the results channel.
func (p *Pool) Close() {
	p.markClosed()
	p.inflight.Wait()
	p.finish()
}

func (p *Pool) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Pool) finish() {
	p.closeOnce.Do(func() {
		p.cancelFunc()
		p.pool.Release()
		close(p.results)
	})
}
