package modelclient

import (
	"context"
	"errors"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
)

// Caller wraps a Provider with a per-call deadline and maps provider faults
// into the pipeline's typed error kinds. It issues exactly one request per
// Call; the caller owns any retry decision.
type Caller struct {
	provider Provider
}

func NewCaller(provider Provider) *Caller {
	return &Caller{provider: provider}
}

// Call invokes the provider under timeout. A deadline exceeded maps to
// KindTimeout; any other provider error is classified via ClassifyError
// (ProviderTransient by default, ProviderPermanent when the provider
// reports a permanent fault).
func (c *Caller) Call(ctx context.Context, req CompletionRequest, timeout time.Duration) (CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.provider.Complete(callCtx, req)
	if err == nil {
		return resp, nil
	}

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return CompletionResponse{}, vqerrors.Wrap(vqerrors.KindTimeout, "model call exceeded timeout", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return CompletionResponse{}, vqerrors.Wrap(vqerrors.KindCancelled, "model call cancelled", err)
	}
	return CompletionResponse{}, ClassifyError(err)
}

// PermanentError, when wrapped around a provider failure, marks it as
// non-retryable (e.g. malformed request, unsupported model) rather than the
// default transient classification.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// ClassifyError maps a raw provider error into ProviderPermanent if it (or
// anything it wraps) is a *PermanentError, otherwise ProviderTransient.
func ClassifyError(err error) error {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return vqerrors.Wrap(vqerrors.KindProviderPermanent, "provider error", perm.Err)
	}
	return vqerrors.Wrap(vqerrors.KindProviderTransient, "provider error", err)
}
