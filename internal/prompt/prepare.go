// Package prompt renders per-analysis-type prompts and model parameters
// from a loaded analysisconfig.AnalysisConfig (C3 in the design). No prompt
// text is ever hardcoded here; the loaded config is the only source of
// truth.
package prompt

import (
	"strings"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

// PlaceholderBase64Image is the mandatory substitution token every prompt
// template may reference.
const PlaceholderBase64Image = "{{BASE64_IMAGE_PLACEHOLDER}}"

// ModelParams mirrors the field-for-field translation of ModelConfiguration
// into the shape the model caller sends over the wire.
type ModelParams struct {
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	TopK        int      `json:"top_k"`
	NumCtx      int      `json:"num_ctx"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// PreparedRun is the fully resolved output of Prepare.
type PreparedRun struct {
	AnalysisType  analysisconfig.AnalysisType
	ModelParams   ModelParams
	SystemPrompt  string
	UserPrompt    string
	ConfigVersion string
}

// Render performs literal, unescaped key replacement -- deliberately not a
// templating engine, so prompt authors never depend on a runtime syntax.
func Render(template string, placeholders map[string]string) string {
	rendered := template
	for key, value := range placeholders {
		rendered = strings.ReplaceAll(rendered, key, value)
	}
	return rendered
}

// ModelParamsFromConfig translates cfg.ModelConfiguration field-for-field.
// NumPredict is only emitted when set.
func ModelParamsFromConfig(cfg analysisconfig.AnalysisConfig) ModelParams {
	mc := cfg.ModelConfiguration
	return ModelParams{
		Model:       mc.Model,
		Temperature: mc.Temperature,
		TopP:        mc.TopP,
		TopK:        mc.TopK,
		NumCtx:      mc.NumCtx,
		NumPredict:  mc.NumPredict,
	}
}

// Prepare resolves cfg from the registry, renders both prompts with the
// base64 image placeholder plus any extra placeholders, and builds the
// model parameter set.
func Prepare(reg *analysisconfig.Registry, t analysisconfig.AnalysisType, base64Image string, extra map[string]string) (PreparedRun, error) {
	cfg, err := reg.Get(t)
	if err != nil {
		return PreparedRun{}, err
	}

	placeholders := map[string]string{PlaceholderBase64Image: base64Image}
	for k, v := range extra {
		placeholders[k] = v
	}

	return PreparedRun{
		AnalysisType:  cfg.AnalysisType,
		ModelParams:   ModelParamsFromConfig(cfg),
		SystemPrompt:  Render(cfg.Prompts.SystemPrompt, placeholders),
		UserPrompt:    Render(cfg.Prompts.UserPrompt, placeholders),
		ConfigVersion: cfg.Version,
	}, nil
}
