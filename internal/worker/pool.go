package worker

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Submit when the pending buffer is at
// capacity. Callers reject the submission rather than block.
var ErrQueueFull = errors.New("conversion queue is full")

// Pool is the in-process scheduler: a fixed number of workers draining a
// bounded buffer of job ids. Submit never blocks and a job id can never
// be in flight twice at once.
type Pool struct {
	proc    *Processor
	jobs    chan uuid.UUID
	workers int

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

func NewPool(proc *Processor, workers, capacity int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if capacity <= 0 {
		capacity = 64
	}
	return &Pool{
		proc:     proc,
		jobs:     make(chan uuid.UUID, capacity),
		workers:  workers,
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Start launches the workers. They stop when ctx is cancelled; in-flight
// conversions see the cancellation through their own context.
func (p *Pool) Start(ctx context.Context) {
	log.Printf("[pool] started workers=%d capacity=%d", p.workers, cap(p.jobs))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.jobs:
			if err := p.proc.Process(ctx, id); err != nil {
				log.Printf("[pool-%d] job_id=%s process error=%v", n, id, err)
			}
			p.mu.Lock()
			delete(p.inflight, id)
			p.mu.Unlock()
		}
	}
}

// Submit enqueues a job for background execution and returns immediately.
// A duplicate submission of an id already queued or running is a no-op.
func (p *Pool) Submit(ctx context.Context, id uuid.UUID) error {
	p.mu.Lock()
	if _, dup := p.inflight[id]; dup {
		p.mu.Unlock()
		return nil
	}
	p.inflight[id] = struct{}{}
	p.mu.Unlock()

	select {
	case p.jobs <- id:
		return nil
	default:
		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()
		return ErrQueueFull
	}
}

// Wait blocks until all workers have exited after their context was
// cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
