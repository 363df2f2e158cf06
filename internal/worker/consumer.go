package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"file-conversion-service/internal/queue"
)

// Consumer drains the durable queue in a dedicated worker process. Claimed
// ids are acked after processing either way: the job row already carries
// the terminal state, and if the process died mid-flight the reaper
// returns the id to the queue.
type Consumer struct {
	queue      queue.Queue
	proc       *Processor
	workers    int
	claimDelay time.Duration
}

func NewConsumer(q queue.Queue, proc *Processor, workers int) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	return &Consumer{
		queue:      q,
		proc:       proc,
		workers:    workers,
		claimDelay: 5 * time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	log.Printf("[consumer] started workers=%d", c.workers)

	jobCh := make(chan string)

	for i := 0; i < c.workers; i++ {
		go func(n int) {
			for rawID := range jobCh {
				id, err := uuid.Parse(rawID)
				if err != nil {
					log.Printf("[consumer-%d] bad job id %q: %v", n, rawID, err)
				} else if err := c.proc.Process(ctx, id); err != nil {
					log.Printf("[consumer-%d] job_id=%s process error=%v", n, id, err)
				}
				if err := c.queue.Ack(ctx, rawID); err != nil {
					log.Printf("[consumer-%d] job_id=%s ack error=%v", n, rawID, err)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			log.Println("[consumer] stopped")
			return
		default:
			rawID, err := c.queue.ClaimBlocking(ctx, c.claimDelay)
			if err != nil {
				// timeout or cancellation, keep looping
				continue
			}
			select {
			case jobCh <- rawID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}

// Reap periodically returns abandoned processing entries to the queue.
func (c *Consumer) Reap(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.queue.RequeueStale(ctx, 100)
			if err != nil {
				log.Printf("[consumer] requeue error=%v", err)
				continue
			}
			if n > 0 {
				log.Printf("[consumer] requeued %d stale jobs", n)
			}
		}
	}
}
