package analysisconfig

import (
	"fmt"

	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
)

// ModelConfiguration holds the generation parameters sent to the model
// provider for a given analysis type.
type ModelConfiguration struct {
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	TopP        float64  `yaml:"top_p"`
	TopK        int      `yaml:"top_k"`
	NumCtx      int      `yaml:"num_ctx"`
	NumPredict  *int     `yaml:"max_tokens"`
}

func (m ModelConfiguration) validate() error {
	if m.Model == "" {
		return fmt.Errorf("model_configuration.model must be non-empty")
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("model_configuration.temperature must be in [0,2], got %v", m.Temperature)
	}
	if m.TopP < 0 || m.TopP > 1 {
		return fmt.Errorf("model_configuration.top_p must be in [0,1], got %v", m.TopP)
	}
	if m.TopK < 0 {
		return fmt.Errorf("model_configuration.top_k must be >= 0, got %d", m.TopK)
	}
	if m.NumCtx < 128 {
		return fmt.Errorf("model_configuration.num_ctx must be >= 128, got %d", m.NumCtx)
	}
	if m.NumPredict != nil && *m.NumPredict < 0 {
		return fmt.Errorf("model_configuration.max_tokens must be >= 0")
	}
	return nil
}

// VisionOptimization controls image preprocessing hints handed to the
// (externally owned) image pipeline.
type VisionOptimization struct {
	MaxEdgePixels       int  `yaml:"max_edge_pixels"`
	PreserveAspectRatio bool `yaml:"preserve_aspect_ratio"`
}

func (v VisionOptimization) validate() error {
	if v.MaxEdgePixels < 64 || v.MaxEdgePixels > 4096 {
		return fmt.Errorf("vision_optimization.max_edge_pixels must be in [64,4096], got %d", v.MaxEdgePixels)
	}
	return nil
}

// ParallelProcessing controls the concurrency knobs for this analysis type.
type ParallelProcessing struct {
	MaxConcurrency int  `yaml:"max_concurrency"`
	WorkerCount    *int `yaml:"worker_count"`
	BatchSize      *int `yaml:"batch_size"`
	TimeoutSeconds *int `yaml:"timeout_seconds"`
}

func (p ParallelProcessing) validate() error {
	if p.MaxConcurrency < 1 || p.MaxConcurrency > 64 {
		return fmt.Errorf("parallel_processing.max_concurrency must be in [1,64], got %d", p.MaxConcurrency)
	}
	if p.WorkerCount != nil && (*p.WorkerCount < 1 || *p.WorkerCount > 128) {
		return fmt.Errorf("parallel_processing.worker_count must be in [1,128]")
	}
	if p.BatchSize != nil && (*p.BatchSize < 1 || *p.BatchSize > 1024) {
		return fmt.Errorf("parallel_processing.batch_size must be in [1,1024]")
	}
	if p.TimeoutSeconds != nil && *p.TimeoutSeconds < 1 {
		return fmt.Errorf("parallel_processing.timeout_seconds must be >= 1")
	}
	return nil
}

// Prompts holds the two rendered-template sources of truth; no prompt text
// ever lives in code.
type Prompts struct {
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
}

func (p Prompts) validate() error {
	if p.SystemPrompt == "" {
		return fmt.Errorf("prompts.system_prompt must be non-empty")
	}
	if p.UserPrompt == "" {
		return fmt.Errorf("prompts.user_prompt must be non-empty")
	}
	return nil
}

// ValidationConstraints describes the rules a QA stage enforces against the
// model's output, plus the original schema's optional structural hints.
type ValidationConstraints struct {
	Rules          []string          `yaml:"rules"`
	OutputFormat   string            `yaml:"output_format"`
	RequiredFields []string          `yaml:"required_fields"`
	DataTypes      map[string]string `yaml:"data_types"`
}

// PerformanceTargets is descriptive guidance carried on the loaded config;
// Validate range-checks SuccessRateTarget and MinAccuracy, and no other
// component reads these fields.
type PerformanceTargets struct {
	ThroughputTarget  string   `yaml:"throughput_target"`
	SuccessRateTarget float64  `yaml:"success_rate_target"`
	MaxLatencyMs      *int     `yaml:"max_latency_ms"`
	MinAccuracy       *float64 `yaml:"min_accuracy"`
	ThroughputGoals   []string `yaml:"throughput_goals"`
}

func (p PerformanceTargets) validate() error {
	if p.SuccessRateTarget < 0 || p.SuccessRateTarget > 1 {
		return fmt.Errorf("performance_targets.success_rate_target must be in [0,1], got %v", p.SuccessRateTarget)
	}
	if p.MinAccuracy != nil && (*p.MinAccuracy < 0 || *p.MinAccuracy > 1) {
		return fmt.Errorf("performance_targets.min_accuracy must be in [0,1]")
	}
	return nil
}

// Metadata mirrors the top-level fields for backward-compatible configs
// that carry both; when present it must agree with the top-level values.
type Metadata struct {
	Name         string       `yaml:"name"`
	Version      string       `yaml:"version"`
	Description  string       `yaml:"description"`
	AnalysisType AnalysisType `yaml:"analysis_type"`
}

// AnalysisConfig is the per-analysis-type record loaded from
// <analysis_type>.yaml.
type AnalysisConfig struct {
	AnalysisType AnalysisType `yaml:"analysis_type"`
	Version      string       `yaml:"version"`

	ModelConfiguration ModelConfiguration `yaml:"model_configuration"`
	VisionOptimization VisionOptimization `yaml:"vision_optimization"`
	ParallelProcessing ParallelProcessing `yaml:"parallel_processing"`

	Prompts               Prompts               `yaml:"prompts"`
	ValidationConstraints ValidationConstraints `yaml:"validation_constraints"`
	PerformanceTargets    PerformanceTargets    `yaml:"performance_targets"`

	QAStages []QAStage `yaml:"qa_stages"`

	Metadata *Metadata `yaml:"metadata"`
}

// Validate enforces every invariant from spec.md §3.
func (c *AnalysisConfig) Validate() error {
	if !c.AnalysisType.Valid() {
		return vqerrors.New(vqerrors.KindConfigInvalid, fmt.Sprintf("unknown analysis_type %q", c.AnalysisType))
	}
	if c.Version == "" {
		return vqerrors.New(vqerrors.KindConfigInvalid, "version must be non-empty")
	}
	for _, validator := range []interface{ validate() error }{
		c.ModelConfiguration, c.VisionOptimization, c.ParallelProcessing, c.PerformanceTargets,
	} {
		if err := validator.validate(); err != nil {
			return vqerrors.Wrap(vqerrors.KindConfigInvalid, "invalid analysis config", err)
		}
	}
	if err := c.Prompts.validate(); err != nil {
		return vqerrors.Wrap(vqerrors.KindConfigInvalid, "invalid analysis config", err)
	}
	if err := c.validateQAStages(); err != nil {
		return err
	}
	if c.Metadata != nil {
		if c.Metadata.AnalysisType != "" && c.Metadata.AnalysisType != c.AnalysisType {
			return vqerrors.New(vqerrors.KindConfigInvalid, "metadata.analysis_type must match analysis_type")
		}
		if c.Metadata.Version != "" && c.Metadata.Version != c.Version {
			return vqerrors.New(vqerrors.KindConfigInvalid, "metadata.version must match version")
		}
	}
	return nil
}

func (c *AnalysisConfig) validateQAStages() error {
	if len(c.QAStages) == 0 {
		c.QAStages = append([]QAStage{}, CanonicalStageOrder...)
		return nil
	}
	seen := make(map[QAStage]bool, len(c.QAStages))
	for _, s := range c.QAStages {
		if !s.Valid() {
			return vqerrors.New(vqerrors.KindConfigInvalid, fmt.Sprintf("unknown qa_stage %q", s))
		}
		if seen[s] {
			return vqerrors.New(vqerrors.KindConfigInvalid, "qa_stages must be unique")
		}
		seen[s] = true
	}
	return nil
}
