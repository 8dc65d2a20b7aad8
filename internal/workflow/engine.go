// Package workflow implements the Analysis Workflow Engine (C7): a
// bounded-concurrency pool that resolves config, prepares prompts, calls
// the model, optionally runs QA, and assigns a round-robin virtual GPU id
// to each job.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
	"github.com/flyingrobots/vqa-workqueue/internal/modelclient"
	"github.com/flyingrobots/vqa-workqueue/internal/prompt"
	"github.com/flyingrobots/vqa-workqueue/internal/qa"
	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
	"golang.org/x/sync/semaphore"
)

// descriptiveTypes is the fixed set whose temperature gets a +0.1 bump,
// clamped to [0.1, 0.3]. Whether this set should be configurable is an open
// question upstream; it is kept as a named constant here.
var descriptiveTypes = map[analysisconfig.AnalysisType]bool{
	analysisconfig.Captions:         true,
	analysisconfig.SceneDescription: true,
	analysisconfig.Themes:           true,
}

// AnalysisJob is one unit of work submitted to the engine.
type AnalysisJob struct {
	TaskID             string
	AnalysisType       analysisconfig.AnalysisType
	Base64Image        string
	ExtraPlaceholders  map[string]string
}

// QASummary is the condensed QA outcome attached to a successful result.
type QASummary struct {
	AggregateConfidence float64
	Stages              []StageConfidence
}

// StageConfidence is one stage's confidence, surfaced without its content.
type StageConfidence struct {
	Stage      analysisconfig.QAStage
	Confidence float64
}

// AnalysisResult is the per-job outcome; partial failures are represented
// here, never raised.
type AnalysisResult struct {
	AnalysisType analysisconfig.AnalysisType
	Success      bool
	Content      *string
	Confidence   *float64
	DurationMs   int64
	Error        string
	Raw          *modelclient.CompletionResponse
	GPUID        int
	QA           *QASummary
}

// Engine runs AnalysisJobs under a bounded semaphore, owns the round-robin
// GPU assignment counter, and optionally feeds successful outputs through a
// QA orchestrator.
type Engine struct {
	registry       *analysisconfig.Registry
	caller         *modelclient.Caller
	sem            *semaphore.Weighted
	timeout        time.Duration
	gpuCores       int
	orchestrator   *qa.Orchestrator

	mu sync.Mutex
	rr int

	// OnQAResult, if set, is invoked with the full orchestrator result after
	// a successful sequential QA run -- the hook the corrective trigger (C6)
	// and state recorder (C10) attach through, since the engine owns only an
	// interface handle to the orchestrator and never back-references them.
	OnQAResult func(job AnalysisJob, result qa.OrchestratorResult)
}

// Config holds the engine's tunables; zero values fall back to the
// documented defaults.
type Config struct {
	MaxConcurrency int64
	TimeoutSeconds int
	GPUCores       int
}

func NewEngine(registry *analysisconfig.Registry, caller *modelclient.Caller, orchestrator *qa.Orchestrator, cfg Config) *Engine {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	gpuCores := cfg.GPUCores
	if gpuCores <= 0 {
		gpuCores = 16
	}
	return &Engine{
		registry:     registry,
		caller:       caller,
		sem:          semaphore.NewWeighted(maxConcurrency),
		timeout:      time.Duration(timeoutSeconds) * time.Second,
		gpuCores:     gpuCores,
		orchestrator: orchestrator,
	}
}

// assignGPU increments the monotonic round-robin counter under the same
// critical section that computes the assigned id.
func (e *Engine) assignGPU() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	gpu := e.rr % e.gpuCores
	e.rr++
	return gpu
}

// adjustTemperature bumps temperature by +0.1, clamped to [0.1, 0.3], for
// the fixed set of descriptive analysis types.
func adjustTemperature(t analysisconfig.AnalysisType, params prompt.ModelParams) prompt.ModelParams {
	if !descriptiveTypes[t] {
		return params
	}
	bumped := params.Temperature + 0.1
	if bumped < 0.1 {
		bumped = 0.1
	}
	if bumped > 0.3 {
		bumped = 0.3
	}
	params.Temperature = bumped
	return params
}

func (e *Engine) runOne(ctx context.Context, job AnalysisJob, gpuID int) AnalysisResult {
	start := time.Now()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return AnalysisResult{AnalysisType: job.AnalysisType, Success: false, Error: err.Error(), GPUID: gpuID}
	}
	defer e.sem.Release(1)

	prepared, err := prompt.Prepare(e.registry, job.AnalysisType, job.Base64Image, job.ExtraPlaceholders)
	if err != nil {
		return AnalysisResult{
			AnalysisType: job.AnalysisType,
			Success:      false,
			Error:        err.Error(),
			DurationMs:   time.Since(start).Milliseconds(),
			GPUID:        gpuID,
		}
	}

	params := adjustTemperature(job.AnalysisType, prepared.ModelParams)
	req := modelclient.CompletionRequest{
		ModelParams: params,
		Messages: []modelclient.Message{
			{Role: "system", Content: prepared.SystemPrompt},
			{Role: "user", Content: prepared.UserPrompt},
		},
	}

	resp, err := e.caller.Call(ctx, req, e.timeout)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		errMsg := err.Error()
		if vqerrors.IsKind(err, vqerrors.KindTimeout) {
			errMsg = fmt.Sprintf("timeout after %ds", int(e.timeout.Seconds()))
		}
		return AnalysisResult{
			AnalysisType: job.AnalysisType,
			Success:      false,
			Error:        errMsg,
			DurationMs:   durationMs,
			GPUID:        gpuID,
		}
	}

	content := resp.Content()
	confidence := 0.0
	if content != "" {
		confidence = 0.5
	}

	result := AnalysisResult{
		AnalysisType: job.AnalysisType,
		Success:      true,
		Content:      &content,
		Confidence:   &confidence,
		DurationMs:   durationMs,
		Raw:          &resp,
		GPUID:        gpuID,
	}

	if e.orchestrator != nil {
		qaReq := qa.AgentRequest{
			AnalysisType: job.AnalysisType,
			Prompt:       content,
			Context:      map[string]interface{}{"config_version": prepared.ConfigVersion},
		}
		qaRes, err := e.orchestrator.RunSequential(ctx, qaReq, nil)
		if err == nil {
			stages := make([]StageConfidence, 0, len(qaRes.Results))
			for _, r := range qaRes.Results {
				stages = append(stages, StageConfidence{Stage: r.Stage, Confidence: r.Response.Confidence})
			}
			result.QA = &QASummary{AggregateConfidence: qaRes.AggregateConfidence, Stages: stages}
			if e.OnQAResult != nil {
				e.OnQAResult(job, qaRes)
			}
		}
	}

	return result
}

// RunBatch runs each job as a concurrent task and gathers all results in
// submission order; partial failures are reported per-job, never raised.
func (e *Engine) RunBatch(ctx context.Context, jobs []AnalysisJob) []AnalysisResult {
	gpuIDs := make([]int, len(jobs))
	for i := range jobs {
		gpuIDs[i] = e.assignGPU()
	}

	results := make([]AnalysisResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job AnalysisJob) {
			defer wg.Done()
			results[i] = e.runOne(ctx, job, gpuIDs[i])
		}(i, job)
	}
	wg.Wait()
	return results
}
