package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OllamaProvider calls an Ollama-compatible chat-completion endpoint over
// plain HTTP: it POSTs {model, messages, options, stream:false} to
// <api_base>/api/chat and returns the reply's {message} as the single
// choice of a {choices:[{message:{content}}]} response.
type OllamaProvider struct {
	APIBase string
	HTTP    *http.Client
}

// NewOllamaProvider builds a provider against apiBase (e.g.
// "http://localhost:11434"). A nil http.Client is replaced with a default
// one; per-call timeouts are applied by the Caller via context, not here.
func NewOllamaProvider(apiBase string, httpClient *http.Client) *OllamaProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaProvider{APIBase: apiBase, HTTP: httpClient}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Options  ollamaOptions  `json:"options"`
	Stream   bool           `json:"stream"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	body := ollamaRequest{
		Model:    req.ModelParams.Model,
		Messages: req.Messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.ModelParams.Temperature,
			TopP:        req.ModelParams.TopP,
			TopK:        req.ModelParams.TopK,
			NumCtx:      req.ModelParams.NumCtx,
		},
	}
	if req.ModelParams.NumPredict != nil {
		body.Options.NumPredict = *req.ModelParams.NumPredict
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.APIBase+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTP.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read ollama response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return CompletionResponse{}, fmt.Errorf("ollama responded %d: %s", resp.StatusCode, string(raw))
	}

	var wire struct {
		Message Message `json:"message"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return CompletionResponse{}, fmt.Errorf("decode ollama response: %w", err)
	}
	return CompletionResponse{Choices: []Choice{{Message: wire.Message}}}, nil
}

var _ Provider = (*OllamaProvider)(nil)
