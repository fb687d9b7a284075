package classifier

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("inference pool closed")

// Pool runs CPU-bound inference on a fixed set of goroutines so request
// handlers never run the model inline.
type Pool struct {
	jobs   chan func()
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines with a queue of queue pending jobs.
// workers <= 0 means one per CPU.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		jobs:   make(chan func(), queue),
		closed: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case fn := <-p.jobs:
			fn()
		}
	}
}

// Do runs fn on a worker and waits for it. If ctx ends first Do returns
// ctx.Err(); a job already started still runs to completion.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrPoolClosed
	case p.jobs <- job:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Close stops the workers after their current job. Queued jobs that never
// started are abandoned and their callers return once ctx ends.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}
