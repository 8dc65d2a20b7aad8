package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
	"github.com/flyingrobots/vqa-workqueue/internal/queue"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (queue.Store, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := queue.NewRedisStore(rdb)
	return store, func() {
		store.Close()
		mr.Close()
	}
}

// TestRoundRobinDrainAcrossDistinctQueues is the spec's concrete scenario 6:
// one item each on analysis:ages, analysis:themes, corrective:structural:ages.
// After a bounded wait the processor must have seen all three distinct
// queue names.
func TestRoundRobinDrainAcrossDistinctQueues(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	agesQ := queue.AnalysisQueueName(analysisconfig.Ages)
	themesQ := queue.AnalysisQueueName(analysisconfig.Themes)
	correctiveQ := queue.CorrectiveQueueName(analysisconfig.Structural, analysisconfig.Ages)

	if err := store.Append(ctx, agesQ, "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, themesQ, "b"); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, correctiveQ, "c"); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	process := func(ctx context.Context, queueName, raw string) error {
		mu.Lock()
		seen[queueName] = true
		mu.Unlock()
		return nil
	}

	coord := New(store, Config{Concurrency: 8, IdleBackoff: 10 * time.Millisecond}, nil)
	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(runCtx, process) }()

	deadline := time.After(200 * time.Millisecond)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-tick.C:
			mu.Lock()
			n := len(seen)
			mu.Unlock()
			if n == 3 {
				break loop
			}
		}
	}

	coord.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for _, q := range []string{agesQ, themesQ, correctiveQ} {
		if !seen[q] {
			t.Fatalf("expected queue %q to be drained, seen=%v", q, seen)
		}
	}
}

func TestFIFOWithinQueue(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	q := queue.AnalysisQueueName(analysisconfig.Weather)
	store.Append(ctx, q, "first")
	store.Append(ctx, q, "second")

	var mu sync.Mutex
	var order []string
	process := func(ctx context.Context, queueName, raw string) error {
		mu.Lock()
		order = append(order, raw)
		mu.Unlock()
		return nil
	}

	coord := New(store, Config{Concurrency: 1, IdleBackoff: 10 * time.Millisecond}, nil)
	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(runCtx, process) }()

	time.Sleep(100 * time.Millisecond)
	coord.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected FIFO order [first second], got %v", order)
	}
}

func TestStopExitsBetweenRotations(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	coord := New(store, Config{Concurrency: 8, IdleBackoff: 5 * time.Millisecond}, nil)
	process := func(ctx context.Context, queueName, raw string) error { return nil }

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background(), process) }()

	coord.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after Stop")
	}
}
