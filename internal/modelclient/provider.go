// Package modelclient issues a single text-completion call against an
// external model provider (C4 in the design) and classifies the outcome
// into the error kinds the rest of the pipeline expects. It never retries;
// retry policy belongs to the caller.
package modelclient

import (
	"context"

	"github.com/flyingrobots/vqa-workqueue/internal/prompt"
)

// Message is one entry of the chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the wire shape of a single model call.
type CompletionRequest struct {
	ModelParams prompt.ModelParams
	Messages    []Message
}

// Choice mirrors the provider's choices[].message shape.
type Choice struct {
	Message Message `json:"message"`
}

// CompletionResponse is the raw provider reply; callers read
// Choices[0].Message.Content.
type CompletionResponse struct {
	Choices []Choice `json:"choices"`
}

// Content returns the first choice's text, or "" if the response carries no
// choices.
func (r CompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Provider is the minimal text-completion RPC abstraction. Implementations
// issue exactly one network call per Complete and must not retry.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
