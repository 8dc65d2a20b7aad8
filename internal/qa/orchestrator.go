package qa

import (
	"context"
	"fmt"
	"sync"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
	"golang.org/x/sync/semaphore"
)

// AgentRunResult pairs a stage with the response its agent produced.
type AgentRunResult struct {
	Stage    analysisconfig.QAStage
	Response AgentResponse
}

// OrchestratorResult is the aggregate output of a run_all/run_sequential
// call: per-stage results, their mean confidence, and (sequential mode
// only) the shared context accumulated across stages.
type OrchestratorResult struct {
	Results             []AgentRunResult
	AggregateConfidence float64
	Context             map[string]interface{}
}

// Orchestrator coordinates a stage -> agent registry under a shared
// concurrency gate (default 8).
type Orchestrator struct {
	mu       sync.RWMutex
	registry map[analysisconfig.QAStage]Agent
	sem      *semaphore.Weighted
}

func NewOrchestrator(maxConcurrency int64) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Orchestrator{
		registry: make(map[analysisconfig.QAStage]Agent),
		sem:      semaphore.NewWeighted(maxConcurrency),
	}
}

func (o *Orchestrator) Register(stage analysisconfig.QAStage, agent Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registry[stage] = agent
}

func (o *Orchestrator) Unregister(stage analysisconfig.QAStage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.registry, stage)
}

func (o *Orchestrator) ListRegistered() []analysisconfig.QAStage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	stages := make([]analysisconfig.QAStage, 0, len(o.registry))
	for s := range o.registry {
		stages = append(stages, s)
	}
	return stages
}

func (o *Orchestrator) agentFor(stage analysisconfig.QAStage) (Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.registry[stage]
	return a, ok
}

func (o *Orchestrator) runAgent(ctx context.Context, stage analysisconfig.QAStage, req AgentRequest) (AgentRunResult, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return AgentRunResult{}, err
	}
	defer o.sem.Release(1)

	agent, ok := o.agentFor(stage)
	if !ok {
		return AgentRunResult{}, fmt.Errorf("qa: no agent registered for stage %q", stage)
	}
	resp, err := agent.Run(ctx, req)
	if err != nil {
		return AgentRunResult{}, err
	}
	return AgentRunResult{Stage: stage, Response: resp}, nil
}

// RunAll executes the selected (or all registered) stages concurrently.
// Results carry their stage tag but make no ordering guarantee. An agent
// error is fatal to the run and is propagated to the caller.
func (o *Orchestrator) RunAll(ctx context.Context, req AgentRequest, stages []analysisconfig.QAStage) (OrchestratorResult, error) {
	selected := stages
	if selected == nil {
		selected = o.ListRegistered()
	}

	type outcome struct {
		result AgentRunResult
		err    error
	}
	var toRun []analysisconfig.QAStage
	for _, s := range selected {
		if _, ok := o.agentFor(s); ok {
			toRun = append(toRun, s)
		}
	}

	outcomes := make(chan outcome, len(toRun))
	var wg sync.WaitGroup
	for _, stage := range toRun {
		wg.Add(1)
		go func(stage analysisconfig.QAStage) {
			defer wg.Done()
			res, err := o.runAgent(ctx, stage, req)
			outcomes <- outcome{result: res, err: err}
		}(stage)
	}
	wg.Wait()
	close(outcomes)

	results := make([]AgentRunResult, 0, len(toRun))
	for o := range outcomes {
		if o.err != nil {
			return OrchestratorResult{}, o.err
		}
		results = append(results, o.result)
	}

	return OrchestratorResult{
		Results:             results,
		AggregateConfidence: meanConfidence(results),
		Context:             nil,
	}, nil
}

// RunSequential executes stages in canonical order (structural,
// content_quality, domain_expert), skipping any not registered; a non-nil
// stages argument selects which stages run but not their order. Before each
// stage it builds a request whose context is the union of the caller's
// context and the accumulator so far; after each stage it writes
// "<stage>_content" into the accumulator for the next stage to see.
func (o *Orchestrator) RunSequential(ctx context.Context, req AgentRequest, stages []analysisconfig.QAStage) (OrchestratorResult, error) {
	ordered := analysisconfig.CanonicalStageOrder
	if stages != nil {
		selected := make(map[analysisconfig.QAStage]bool, len(stages))
		for _, s := range stages {
			selected[s] = true
		}
		ordered = make([]analysisconfig.QAStage, 0, len(stages))
		for _, s := range analysisconfig.CanonicalStageOrder {
			if selected[s] {
				ordered = append(ordered, s)
			}
		}
	}

	results := make([]AgentRunResult, 0, len(ordered))
	shared := make(map[string]interface{})

	for _, stage := range ordered {
		if _, ok := o.agentFor(stage); !ok {
			continue
		}

		mergedCtx := map[string]interface{}{}
		for k, v := range req.Context {
			mergedCtx[k] = v
		}
		for k, v := range shared {
			mergedCtx[k] = v
		}
		stageReq := AgentRequest{
			AnalysisType: req.AnalysisType,
			QAStage:      &stage,
			Prompt:       req.Prompt,
			Context:      mergedCtx,
		}

		res, err := o.runAgent(ctx, stage, stageReq)
		if err != nil {
			return OrchestratorResult{}, err
		}
		results = append(results, res)
		shared[fmt.Sprintf("%s_content", stage)] = res.Response.Content
	}

	var outCtx map[string]interface{}
	if len(shared) > 0 {
		outCtx = shared
	}

	return OrchestratorResult{
		Results:             results,
		AggregateConfidence: meanConfidence(results),
		Context:             outCtx,
	}, nil
}

func meanConfidence(results []AgentRunResult) float64 {
	if len(results) == 0 {
		return 0.0
	}
	var sum float64
	for _, r := range results {
		sum += r.Response.Confidence
	}
	return sum / float64(len(results))
}
