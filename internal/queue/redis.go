package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisQueue implements a reliable queue on two Redis lists.
// Claim: BRPOPLPUSH queue -> processing
// Ack:   LREM from processing
// A periodic reaper moves stale processing entries back, giving
// at-least-once delivery across worker restarts.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
}

func NewRedis(rdb *redis.Client, queueKey, processingKey string) Queue {
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueKey, jobID).Err()
}

func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := 1 * time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		wait := slot
		if !forever {
			remain := time.Until(deadline)
			if remain <= 0 {
				return "", redis.Nil
			}
			if remain < wait {
				wait = remain
			}
		}

		id, err := q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, wait).Result()
		if err == nil {
			return id, nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		return "", err
	}
}

func (q *redisQueue) Ack(ctx context.Context, jobID string) error {
	return q.rdb.LRem(ctx, q.processingKey, 1, jobID).Err()
}

func (q *redisQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	var moved int64
	for i := int64(0); i < max; i++ {
		id, err := q.rdb.RPopLPush(ctx, q.processingKey, q.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, err
		}
		if id != "" {
			moved++
		}
	}
	return moved, nil
}
