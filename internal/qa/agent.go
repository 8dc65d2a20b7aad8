// Package qa implements the QA Orchestrator (C5): a registry of per-stage
// agents run either concurrently or in canonical sequential order, with
// confidence aggregation.
package qa

import (
	"context"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

// AgentRequest is the uniform input every registered agent receives.
type AgentRequest struct {
	AnalysisType analysisconfig.AnalysisType
	QAStage      *analysisconfig.QAStage
	Prompt       string
	Context      map[string]interface{}
}

// AgentResponse is the uniform output every registered agent produces.
type AgentResponse struct {
	Content    string
	Confidence float64
	Raw        map[string]interface{}
}

// Agent is the capability every stage implementation must provide:
// Run(ctx, request) -> response.
type Agent interface {
	Run(ctx context.Context, req AgentRequest) (AgentResponse, error)
}

// ValidationContext is the shared input passed to a validate-style agent,
// matching the stage-specific capability set from the spec.
type ValidationContext struct {
	AnalysisType     analysisconfig.AnalysisType
	ConfigVersion    string
	OriginalResponse string
	ImageB64         *string
}

// ValidationResult is the normalized output of a validate-style agent.
type ValidationResult struct {
	Stage           analysisconfig.QAStage
	Passed          bool
	Confidence      float64
	Issues          []string
	CorrectedOutput *string
}

// AgentConfig holds the per-agent timeout and model parameters.
type AgentConfig struct {
	TimeoutSeconds int
	Model          string
	Temperature    float64
	NumCtx         int
}

// DefaultAgentConfig mirrors the original QA agent defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{TimeoutSeconds: 60, Model: "qwen2.5vl:latest", Temperature: 0.05, NumCtx: 32768}
}

// Validator is the capability set { validate(context) -> ValidationResult }
// the spec describes for stage-specific QA implementations.
type Validator interface {
	Validate(ctx context.Context, vctx ValidationContext) (ValidationResult, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, vctx ValidationContext) (ValidationResult, error)

func (f ValidatorFunc) Validate(ctx context.Context, vctx ValidationContext) (ValidationResult, error) {
	return f(ctx, vctx)
}

// WrapValidator adapts a stage-specific Validator into the orchestrator's
// uniform Agent contract, translating between AgentRequest/AgentResponse
// and ValidationContext/ValidationResult.
func WrapValidator(stage analysisconfig.QAStage, v Validator) Agent {
	return validatorAgent{stage: stage, v: v}
}

type validatorAgent struct {
	stage analysisconfig.QAStage
	v     Validator
}

func (a validatorAgent) Run(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	var imageB64 *string
	if raw, ok := req.Context["image_b64"].(string); ok {
		imageB64 = &raw
	}
	configVersion, _ := req.Context["config_version"].(string)

	vctx := ValidationContext{
		AnalysisType:     req.AnalysisType,
		ConfigVersion:    configVersion,
		OriginalResponse: req.Prompt,
		ImageB64:         imageB64,
	}
	result, err := a.v.Validate(ctx, vctx)
	if err != nil {
		return AgentResponse{}, err
	}

	content := req.Prompt
	if result.CorrectedOutput != nil {
		content = *result.CorrectedOutput
	}
	return AgentResponse{
		Content:    content,
		Confidence: result.Confidence,
		Raw: map[string]interface{}{
			"passed": result.Passed,
			"issues": result.Issues,
		},
	}, nil
}
