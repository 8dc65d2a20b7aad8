// Package corrective implements the Corrective Trigger (C6): given a QA
// orchestrator result, decide whether the aggregate confidence warrants
// enqueuing a corrective job, and if so append it to the named queue.
package corrective

import (
	"context"
	"encoding/json"

	"github.com/flyingrobots/vqa-workqueue/internal/qa"
	"github.com/flyingrobots/vqa-workqueue/internal/queue"
)

// Config mirrors the original's CorrectiveTriggerConfig; the queue store
// connection itself is injected rather than resolved from an env var, per
// the decision to share one queue.Store/topology with the main fabric.
type Config struct {
	AggregateThreshold float64
	QueueName          string
}

// DefaultConfig matches the original's defaults.
func DefaultConfig(queueName string) Config {
	return Config{AggregateThreshold: 0.75, QueueName: queueName}
}

// stageResult is the serialized shape of one orchestrator stage result.
type stageResult struct {
	Stage      string  `json:"stage"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// Payload is the JSON body appended to the corrective queue when a trigger
// fires.
type Payload struct {
	TaskID              string                 `json:"task_id"`
	AggregateConfidence float64                `json:"aggregate_confidence"`
	Context             map[string]interface{} `json:"context"`
	Results             []stageResult          `json:"results"`
}

// Result is the outcome of a TriggerIfNeeded call.
type Result struct {
	Triggered bool
	Reason    string
	Payload   *Payload
}

// TriggerIfNeeded enqueues a corrective job to cfg.QueueName via store when
// orchestratorResult's aggregate confidence falls below cfg.AggregateThreshold.
// Failure to reach the queue store is fatal to the call; the caller decides whether
// to retry. When the threshold is met, no queue mutation occurs
// (idempotent no-op).
func TriggerIfNeeded(ctx context.Context, store queue.Store, taskID string, result qa.OrchestratorResult, cfg Config) (Result, error) {
	if result.AggregateConfidence >= cfg.AggregateThreshold {
		return Result{Triggered: false, Reason: "threshold_met"}, nil
	}

	resultsOut := make([]stageResult, 0, len(result.Results))
	for _, r := range result.Results {
		resultsOut = append(resultsOut, stageResult{
			Stage:      string(r.Stage),
			Content:    r.Response.Content,
			Confidence: r.Response.Confidence,
		})
	}
	context := result.Context
	if context == nil {
		context = map[string]interface{}{}
	}
	payload := Payload{
		TaskID:              taskID,
		AggregateConfidence: result.AggregateConfidence,
		Context:             context,
		Results:             resultsOut,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	if err := store.Append(ctx, cfg.QueueName, string(raw)); err != nil {
		return Result{}, err
	}

	return Result{Triggered: true, Reason: "threshold_not_met", Payload: &payload}, nil
}
