package jobengine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// wakeKey is the single list the queue wakes the worker loop on. Job data
// itself lives in the jobs table — Redis only carries a "something changed,
// go look" signal so a freshly queued job doesn't wait out a full poll
// interval.
const wakeKey = "scenekit:jobs:wake"

// WakeQueue is a thin Redis-backed doorbell: producers push a token whenever
// they enqueue a job, and the worker loop blocks on it between polls instead
// of busy-waiting.
type WakeQueue struct {
	client *redis.Client
}

func NewWakeQueue(redisURL string) (*WakeQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("jobengine: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("jobengine: connect redis: %w", err)
	}

	return &WakeQueue{client: client}, nil
}

func (q *WakeQueue) Close() error {
	return q.client.Close()
}

// Wake signals the worker loop that a new job may be available.
func (q *WakeQueue) Wake(ctx context.Context) error {
	return q.client.RPush(ctx, wakeKey, "1").Err()
}

// WaitForWake blocks until a wake signal arrives or timeout elapses. It
// pops a single token; any further queued tokens end later waits early.
func (q *WakeQueue) WaitForWake(ctx context.Context, timeout time.Duration) {
	q.client.BLPop(ctx, timeout, wakeKey)
}
