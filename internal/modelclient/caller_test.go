package modelclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/prompt"
	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
)

type stubProvider struct {
	resp  CompletionResponse
	err   error
	delay time.Duration
}

func (s stubProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return CompletionResponse{}, ctx.Err()
		}
	}
	return s.resp, s.err
}

func TestCallerSuccessReturnsContent(t *testing.T) {
	p := stubProvider{resp: CompletionResponse{Choices: []Choice{{Message: Message{Content: "hello"}}}}}
	c := NewCaller(p)

	resp, err := c.Call(context.Background(), CompletionRequest{ModelParams: prompt.ModelParams{Model: "m"}}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content() != "hello" {
		t.Fatalf("unexpected content: %q", resp.Content())
	}
}

func TestCallerTimeout(t *testing.T) {
	p := stubProvider{delay: 200 * time.Millisecond}
	c := NewCaller(p)

	_, err := c.Call(context.Background(), CompletionRequest{}, 50*time.Millisecond)
	if !vqerrors.IsKind(err, vqerrors.KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestCallerTransientClassification(t *testing.T) {
	p := stubProvider{err: errors.New("connection reset")}
	c := NewCaller(p)

	_, err := c.Call(context.Background(), CompletionRequest{}, time.Second)
	if !vqerrors.IsKind(err, vqerrors.KindProviderTransient) {
		t.Fatalf("expected provider transient error, got %v", err)
	}
}

func TestCallerPermanentClassification(t *testing.T) {
	p := stubProvider{err: &PermanentError{Err: errors.New("unsupported model")}}
	c := NewCaller(p)

	_, err := c.Call(context.Background(), CompletionRequest{}, time.Second)
	if !vqerrors.IsKind(err, vqerrors.KindProviderPermanent) {
		t.Fatalf("expected provider permanent error, got %v", err)
	}
}

func TestCallerNeverRetries(t *testing.T) {
	calls := 0
	p := &countingProvider{onCall: func() { calls++ }, err: errors.New("boom")}
	c := NewCaller(p)

	_, _ = c.Call(context.Background(), CompletionRequest{}, time.Second)
	if calls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", calls)
	}
}

type countingProvider struct {
	onCall func()
	err    error
}

func (p *countingProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.onCall()
	return CompletionResponse{}, p.err
}
