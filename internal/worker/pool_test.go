package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubResult struct {
	id  int
	err error
}

func (r *stubResult) GetError() error {
	return r.err
}

type stubJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	panics    bool
	executed  *int32
}

func (j *stubJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.panics {
		panic("boom")
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &stubResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &stubResult{id: j.id, err: errors.New("job error")}
	}
	return &stubResult{id: j.id}
}

func mustPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p, err := NewPool(context.Background(), workers)
	if err != nil {
		t.Fatalf("NewPool(%d): %v", workers, err)
	}
	return p
}

// collect submits jobs, closes the pool and drains every result
func collect(p *Pool, jobs []Job) []Result {
	go func() {
		for _, job := range jobs {
			if err := p.Submit(job); err != nil {
				break
			}
		}
		p.Close()
	}()

	results := make([]Result, 0, len(jobs))
	for result := range p.Results() {
		results = append(results, result)
	}
	return results
}

func TestNewPool(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{5, 5},
		{0, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		p := mustPool(t, tt.in)
		if p.Workers() != tt.want {
			t.Errorf("NewPool(%d): expected %d workers, got %d", tt.in, tt.want, p.Workers())
		}
		p.Close()
	}
}

func TestPool_RunsEveryJob(t *testing.T) {
	pool := mustPool(t, 2)

	var executed int32
	count := 50
	jobs := make([]Job, count)
	for i := range jobs {
		jobs[i] = &stubJob{id: i, executed: &executed}
	}

	results := collect(pool, jobs)

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

func TestPool_StreamWithConcurrentSubmit(t *testing.T) {
	pool := mustPool(t, 3)
	count := 100

	go func() {
		for i := 0; i < count; i++ {
			if err := pool.Submit(&stubJob{id: i}); err != nil {
				t.Errorf("submit %d: %v", i, err)
			}
		}
		pool.Close()
	}()

	seen := make(map[int]bool)
	for res := range pool.Results() {
		seen[res.(*stubResult).id] = true
	}

	if len(seen) != count {
		t.Errorf("expected %d distinct results, got %d", count, len(seen))
	}
}

type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &stubResult{}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 4
	pool := mustPool(t, workers)

	var current, maxConcurrent, completed int32
	var mu sync.Mutex

	jobs := make([]Job, 40)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 5 * time.Millisecond,
		}
	}

	collect(pool, jobs)

	if atomic.LoadInt32(&completed) != int32(len(jobs)) {
		t.Errorf("expected %d completed jobs, got %d", len(jobs), completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()
	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
}

func TestPool_ErrorsAndPanics(t *testing.T) {
	pool := mustPool(t, 2)

	panicking := &stubJob{id: 3, panics: true}
	results := collect(pool, []Job{
		&stubJob{id: 1, shouldErr: true},
		&stubJob{id: 2},
		panicking,
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	errCount := 0
	var panicked *PanicResult
	for _, res := range results {
		if res.GetError() != nil {
			errCount++
		}
		if pr, ok := res.(*PanicResult); ok {
			panicked = pr
		}
	}

	if errCount != 2 {
		t.Errorf("expected 2 errors, got %d", errCount)
	}
	if panicked == nil {
		t.Fatal("expected a PanicResult")
	}
	if !errors.Is(panicked.Err, ErrJobPanicked) {
		t.Errorf("expected ErrJobPanicked, got %v", panicked.Err)
	}
	if panicked.Job != panicking {
		t.Error("expected PanicResult to carry the panicking job")
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := mustPool(t, 2)
	pool.Close()

	done := make(chan error, 1)
	go func() {
		done <- pool.Submit(&stubJob{})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("expected ErrPoolClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit after close blocked")
	}
}

func TestPool_ParentContextCancelsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := NewPool(ctx, 1)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	go func() {
		if err := p.Submit(&stubJob{duration: 5 * time.Second}); err != nil {
			t.Errorf("submit: %v", err)
		}
		p.Close()
	}()
	cancel()

	start := time.Now()
	var results []Result
	for res := range p.Results() {
		results = append(results, res)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("expected cancelling the parent context to stop the running job")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !errors.Is(results[0].GetError(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", results[0].GetError())
	}
}
