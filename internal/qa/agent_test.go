package qa

import (
	"context"
	"testing"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

func TestWrapValidatorTranslatesRequestAndResult(t *testing.T) {
	corrected := "fixed output"
	var gotCtx ValidationContext
	validator := ValidatorFunc(func(ctx context.Context, vctx ValidationContext) (ValidationResult, error) {
		gotCtx = vctx
		return ValidationResult{
			Stage:           analysisconfig.Structural,
			Passed:          false,
			Confidence:      0.3,
			Issues:          []string{"missing field"},
			CorrectedOutput: &corrected,
		}, nil
	})

	agent := WrapValidator(analysisconfig.Structural, validator)
	resp, err := agent.Run(context.Background(), AgentRequest{
		AnalysisType: analysisconfig.Captions,
		Prompt:       "raw content",
		Context: map[string]interface{}{
			"config_version": "1.2",
			"image_b64":      "aGVsbG8=",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotCtx.AnalysisType != analysisconfig.Captions || gotCtx.ConfigVersion != "1.2" || gotCtx.OriginalResponse != "raw content" {
		t.Fatalf("unexpected validation context: %+v", gotCtx)
	}
	if gotCtx.ImageB64 == nil || *gotCtx.ImageB64 != "aGVsbG8=" {
		t.Fatalf("expected image_b64 to be forwarded, got %v", gotCtx.ImageB64)
	}
	if resp.Content != corrected {
		t.Fatalf("expected corrected output to become content, got %q", resp.Content)
	}
	if resp.Confidence != 0.3 {
		t.Fatalf("expected confidence 0.3, got %v", resp.Confidence)
	}
}

func TestWrapValidatorUsesPromptWhenNoCorrection(t *testing.T) {
	validator := ValidatorFunc(func(ctx context.Context, vctx ValidationContext) (ValidationResult, error) {
		return ValidationResult{Passed: true, Confidence: 0.9}, nil
	})
	agent := WrapValidator(analysisconfig.ContentQuality, validator)

	resp, err := agent.Run(context.Background(), AgentRequest{Prompt: "untouched"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "untouched" {
		t.Fatalf("expected prompt passthrough, got %q", resp.Content)
	}
}
