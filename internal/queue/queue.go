// Package queue provides the durable job queue used when conversion
// workers run in their own process.
package queue

import (
	"context"
	"time"
)

// Queue is a reliable at-least-once queue of job ids.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error

	// ClaimBlocking atomically moves one id from the queue to the
	// processing list and returns it. With timeout <= 0 it blocks until
	// an id arrives or ctx is cancelled.
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)

	// Ack removes a claimed id from the processing list.
	Ack(ctx context.Context, jobID string) error

	// RequeueStale moves abandoned ids from processing back to the queue,
	// up to max, and reports how many moved.
	RequeueStale(ctx context.Context, max int64) (int64, error)
}
