package corrective

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/flyingrobots/vqa-workqueue/internal/qa"
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

func TestTriggerBelowThresholdEnqueuesOnce(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	cfg := Config{AggregateThreshold: 0.75, QueueName: "qa:corrective:test"}
	orch := qa.OrchestratorResult{AggregateConfidence: 0.4}

	result, err := TriggerIfNeeded(ctx, store, "t2", orch, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Triggered || result.Reason != "threshold_not_met" {
		t.Fatalf("expected triggered threshold_not_met, got %+v", result)
	}

	n, err := store.Length(ctx, "qa:corrective:test")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one append, got length %d", n)
	}

	raw, ok, err := store.HeadPop(ctx, "qa:corrective:test")
	if err != nil || !ok {
		t.Fatalf("expected an enqueued item, ok=%v err=%v", ok, err)
	}
	var got Payload
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatal(err)
	}
	if got.TaskID != "t2" {
		t.Fatalf("expected task_id t2, got %q", got.TaskID)
	}
	if got.AggregateConfidence != 0.4 {
		t.Fatalf("expected aggregate_confidence 0.4, got %v", got.AggregateConfidence)
	}
}

func TestTriggerMeetsThresholdIsNoOp(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	cfg := Config{AggregateThreshold: 0.75, QueueName: "qa:corrective:test"}
	orch := qa.OrchestratorResult{AggregateConfidence: 0.9}

	result, err := TriggerIfNeeded(ctx, store, "t3", orch, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered || result.Reason != "threshold_met" {
		t.Fatalf("expected not triggered threshold_met, got %+v", result)
	}

	n, err := store.Length(ctx, "qa:corrective:test")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected no queue mutation on threshold_met, got length %d", n)
	}
}

func TestTriggerExactlyAtThresholdDoesNotFire(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	cfg := Config{AggregateThreshold: 0.75, QueueName: "qa:corrective:test"}
	orch := qa.OrchestratorResult{AggregateConfidence: 0.75}

	result, err := TriggerIfNeeded(ctx, store, "t4", orch, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.Triggered {
		t.Fatal("expected aggregate == threshold to count as threshold_met")
	}
}
