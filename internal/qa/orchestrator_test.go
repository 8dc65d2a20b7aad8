package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

type fixedAgent struct {
	content    string
	confidence float64
	err        error
}

func (a fixedAgent) Run(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	if a.err != nil {
		return AgentResponse{}, a.err
	}
	return AgentResponse{Content: a.content, Confidence: a.confidence}, nil
}

func TestRunSequentialContextPropagationAndAggregate(t *testing.T) {
	o := NewOrchestrator(8)
	o.Register(analysisconfig.Structural, fixedAgent{content: "structural-out", confidence: 0.6})
	o.Register(analysisconfig.ContentQuality, fixedAgent{content: "content-out", confidence: 0.4})
	o.Register(analysisconfig.DomainExpert, fixedAgent{content: "domain-out", confidence: 0.8})

	result, err := o.RunSequential(context.Background(), AgentRequest{
		AnalysisType: analysisconfig.Captions,
		Prompt:       "raw model output",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.AggregateConfidence != 0.6 {
		t.Fatalf("expected aggregate 0.6, got %v", result.AggregateConfidence)
	}
	if len(result.Results) != 3 {
		t.Fatalf("expected 3 stage results, got %d", len(result.Results))
	}
	if result.Results[0].Stage != analysisconfig.Structural ||
		result.Results[1].Stage != analysisconfig.ContentQuality ||
		result.Results[2].Stage != analysisconfig.DomainExpert {
		t.Fatalf("expected canonical stage order, got %+v", result.Results)
	}

	wantContext := map[string]interface{}{
		"structural_content":      "structural-out",
		"content_quality_content": "content-out",
		"domain_expert_content":   "domain-out",
	}
	for k, v := range wantContext {
		if result.Context[k] != v {
			t.Fatalf("expected context[%q]=%v, got %v", k, v, result.Context[k])
		}
	}
}

func TestRunSequentialSkipsUnregisteredStages(t *testing.T) {
	o := NewOrchestrator(8)
	o.Register(analysisconfig.Structural, fixedAgent{content: "s", confidence: 1.0})

	result, err := o.RunSequential(context.Background(), AgentRequest{Prompt: "p"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected only the registered stage to run, got %d results", len(result.Results))
	}
	if result.AggregateConfidence != 1.0 {
		t.Fatalf("expected aggregate 1.0, got %v", result.AggregateConfidence)
	}
}

func TestRunSequentialNoStagesZeroAggregateAndNilContext(t *testing.T) {
	o := NewOrchestrator(8)
	result, err := o.RunSequential(context.Background(), AgentRequest{Prompt: "p"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.AggregateConfidence != 0.0 {
		t.Fatalf("expected aggregate 0.0, got %v", result.AggregateConfidence)
	}
	if result.Context != nil {
		t.Fatalf("expected nil context when no stages ran, got %v", result.Context)
	}
}

func TestRunAllConcurrentAggregate(t *testing.T) {
	o := NewOrchestrator(8)
	o.Register(analysisconfig.Structural, fixedAgent{content: "s", confidence: 1.0})
	o.Register(analysisconfig.ContentQuality, fixedAgent{content: "c", confidence: 0.0})

	result, err := o.RunAll(context.Background(), AgentRequest{Prompt: "p"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	if result.AggregateConfidence != 0.5 {
		t.Fatalf("expected aggregate 0.5, got %v", result.AggregateConfidence)
	}
}

func TestRunAllPropagatesAgentError(t *testing.T) {
	o := NewOrchestrator(8)
	boom := errors.New("boom")
	o.Register(analysisconfig.Structural, fixedAgent{err: boom})

	_, err := o.RunAll(context.Background(), AgentRequest{Prompt: "p"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected agent error to propagate, got %v", err)
	}
}

func TestRunSequentialPropagatesAgentError(t *testing.T) {
	o := NewOrchestrator(8)
	boom := errors.New("boom")
	o.Register(analysisconfig.Structural, fixedAgent{err: boom})

	_, err := o.RunSequential(context.Background(), AgentRequest{Prompt: "p"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected agent error to propagate, got %v", err)
	}
}
