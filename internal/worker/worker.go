// Copyright 2025 James Ross
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ProcessFunc handles one dequeued raw payload from the named queue. Errors
// are logged by the coordinator and never stop the dispatcher.
type ProcessFunc func(ctx context.Context, queueName, raw string) error

// Coordinator is the single-dispatcher round-robin worker (C8): it builds
// the fixed 87-queue circular list once, then loops rotating through it
// until stopped, handing each non-empty head to ProcessFunc under a
// concurrency-bounded semaphore.
type Coordinator struct {
	store       queue.Store
	sem         *semaphore.Weighted
	idleBackoff time.Duration
	log         *zap.Logger

	queues []string
	offset int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Config holds the coordinator's tunables; zero values fall back to the
// documented defaults (concurrency 8, idle backoff 100ms).
type Config struct {
	Concurrency int64
	IdleBackoff time.Duration
}

func New(store queue.Store, cfg Config, log *zap.Logger) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 100 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:       store,
		sem:         semaphore.NewWeighted(cfg.Concurrency),
		idleBackoff: cfg.IdleBackoff,
		log:         log,
		queues:      queue.AllQueueNames(),
		stopCh:      make(chan struct{}),
	}
}

// Run executes the dispatcher loop until ctx is cancelled or Stop is
// called. It returns once the loop has exited and all in-flight processor
// invocations from the final rotation have completed.
func (c *Coordinator) Run(ctx context.Context, process ProcessFunc) error {
	defer c.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		productive := c.rotateOnce(ctx, process)
		if !productive {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.stopCh:
				return nil
			case <-time.After(c.idleBackoff):
			}
		}
	}
}

// rotateOnce visits every queue exactly once, starting from the
// coordinator's persistent offset, non-blockingly popping the head of
// each. A found item is handed to process on its own goroutine, bounded by
// the concurrency semaphore; a cancelled context stops the rotation early.
func (c *Coordinator) rotateOnce(ctx context.Context, process ProcessFunc) bool {
	n := len(c.queues)
	productive := false

	for i := 0; i < n; i++ {
		name := c.queues[(c.offset+i)%n]

		raw, ok, err := c.store.HeadPop(ctx, name)
		if err != nil {
			c.log.Warn("dequeue error, continuing rotation", zap.String("queue", name), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		productive = true

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return productive
		}
		c.wg.Add(1)
		go func(name, raw string) {
			defer c.wg.Done()
			defer c.sem.Release(1)
			if err := process(ctx, name, raw); err != nil {
				c.log.Warn("processor error, dispatcher continues", zap.String("queue", name), zap.Error(err))
			}
		}(name, raw)
	}

	c.offset = (c.offset + 1) % n
	return productive
}

// Stop signals the dispatcher to exit between rotations. Callers must await
// Run's return (it blocks until in-flight invocations complete).
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
