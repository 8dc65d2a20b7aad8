package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

const captionsYAML = `
analysis_type: captions
version: "1.0"
model_configuration:
  model: qwen2.5vl:32b
  temperature: 0.1
  top_p: 0.9
  top_k: 40
  num_ctx: 32768
  max_tokens: 512
vision_optimization:
  max_edge_pixels: 1024
  preserve_aspect_ratio: true
parallel_processing:
  max_concurrency: 8
prompts:
  system_prompt: "You are a captioning assistant."
  user_prompt: "Describe this image: {{BASE64_IMAGE_PLACEHOLDER}} for batch {{BATCH_ID}}"
performance_targets:
  success_rate_target: 0.95
`

func newLoadedRegistry(t *testing.T) *analysisconfig.Registry {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "captions.yaml"), []byte(captionsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := analysisconfig.NewRegistry()
	if _, err := reg.LoadAll(dir); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestRenderLiteralReplace(t *testing.T) {
	got := Render("hello {{NAME}}", map[string]string{"{{NAME}}": "world"})
	if got != "hello world" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestPrepareSubstitutesPlaceholdersAndParams(t *testing.T) {
	reg := newLoadedRegistry(t)

	run, err := Prepare(reg, analysisconfig.Captions, "QkFTRTY0", map[string]string{"{{BATCH_ID}}": "b-42"})
	if err != nil {
		t.Fatal(err)
	}
	if run.SystemPrompt != "You are a captioning assistant." {
		t.Fatalf("unexpected system prompt: %q", run.SystemPrompt)
	}
	want := "Describe this image: QkFTRTY0 for batch b-42"
	if run.UserPrompt != want {
		t.Fatalf("expected %q, got %q", want, run.UserPrompt)
	}
	if run.ConfigVersion != "1.0" {
		t.Fatalf("unexpected config version: %q", run.ConfigVersion)
	}
	if run.ModelParams.NumPredict == nil || *run.ModelParams.NumPredict != 512 {
		t.Fatalf("expected num_predict 512, got %+v", run.ModelParams.NumPredict)
	}
	if run.ModelParams.Model != "qwen2.5vl:32b" {
		t.Fatalf("unexpected model: %q", run.ModelParams.Model)
	}
}

func TestPrepareUnknownType(t *testing.T) {
	reg := analysisconfig.NewRegistry()
	if _, err := Prepare(reg, analysisconfig.Captions, "x", nil); err == nil {
		t.Fatal("expected error for unloaded analysis type")
	}
}

func TestModelParamsOmitsNumPredictWhenUnset(t *testing.T) {
	dir := t.TempDir()
	yaml := `
analysis_type: objects
version: "1.0"
model_configuration:
  model: qwen2.5vl:32b
  temperature: 0.2
  top_p: 0.9
  top_k: 40
  num_ctx: 16384
vision_optimization:
  max_edge_pixels: 1024
  preserve_aspect_ratio: true
parallel_processing:
  max_concurrency: 8
prompts:
  system_prompt: "sys"
  user_prompt: "user {{BASE64_IMAGE_PLACEHOLDER}}"
performance_targets:
  success_rate_target: 0.9
`
	if err := os.WriteFile(filepath.Join(dir, "objects.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := analysisconfig.NewRegistry()
	if _, err := reg.LoadAll(dir); err != nil {
		t.Fatal(err)
	}
	run, err := Prepare(reg, analysisconfig.Objects, "img", nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.ModelParams.NumPredict != nil {
		t.Fatalf("expected nil num_predict, got %v", *run.ModelParams.NumPredict)
	}
}
