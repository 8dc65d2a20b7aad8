package goflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/flyingrobots/vqa-workqueue/internal/breaker"
	"github.com/flyingrobots/vqa-workqueue/internal/obs"
	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// ClientConfig configures a Client's transport and retry policy.
type ClientConfig struct {
	BaseURL     string
	BearerToken string
	MaxAttempts int
	HTTPClient  *http.Client
}

// Client is the typed HTTP+JSON binding to the external job driver RPC.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	cb   *breaker.CircuitBreaker
	log  *zap.Logger
}

// NewClient builds a Client. The circuit breaker trips once at least 4
// requests fall in its 30s window and half or more of them failed, and
// half-opens after a 10s cooldown -- the teacher's own idiom for guarding a
// flaky outbound dependency.
func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:  cfg,
		http: httpClient,
		cb:   breaker.New(30*time.Second, 10*time.Second, 0.5, 4),
		log:  log,
	}
}

func (c *Client) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialBackoff
	b.MaxInterval = defaultMaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1))
}

// do issues one JSON request, retrying retryable/network errors under
// jittered exponential backoff, gated by the circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return vqerrors.Wrap(vqerrors.KindClientError, "marshal request", err)
		}
		payload = b
	}

	op := func() error {
		defer func() { obs.CircuitBreakerState.Set(float64(c.cb.State())) }()
		if !c.cb.Allow() {
			return vqerrors.New(vqerrors.KindServerError, "job driver circuit open")
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			c.cb.Record(false)
			return backoff.Permanent(vqerrors.Wrap(vqerrors.KindClientError, "build request", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.cb.Record(false)
			if ctx.Err() != nil {
				return backoff.Permanent(vqerrors.Wrap(vqerrors.KindCancelled, "request cancelled", ctx.Err()))
			}
			return vqerrors.Wrap(vqerrors.KindServerError, "network error", err)
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 300 {
			apiErr := classifyStatus(resp.StatusCode, respBody)
			retryable := vqerrors.Retryable(apiErr)
			c.cb.Record(retryable == false)
			if retryable {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		c.cb.Record(true)

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(vqerrors.Wrap(vqerrors.KindClientError, "decode response", err))
			}
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(c.backoffPolicy(), ctx))
}

// NextJob fetches the next available job, or (nil, nil) if none is queued.
func (c *Client) NextJob(ctx context.Context) (*Job, error) {
	var job Job
	err := c.do(ctx, http.MethodGet, "/api/v1/agent/next-job", nil, &job)
	if err != nil {
		if vqerrors.IsKind(err, vqerrors.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if job.ProjectID == "" {
		return nil, nil
	}
	return &job, nil
}

// PublishStatus reports lifecycle progress for projectID.
func (c *Client) PublishStatus(ctx context.Context, projectID string, update JobStatusUpdate) error {
	path := fmt.Sprintf("/api/v1/agent/projects/%s/status", projectID)
	return c.do(ctx, http.MethodPost, path, update, nil)
}

// SubmitResult submits the outcome for one (project, media, analysis).
func (c *Client) SubmitResult(ctx context.Context, projectID, mediaID, analysisID string, result ResultPayload) error {
	path := fmt.Sprintf("/api/v1/agent/projects/%s/media/%s/analysis/%s", projectID, mediaID, analysisID)
	return c.do(ctx, http.MethodPost, path, result, nil)
}

// RequestReport asks the driver to compile a report for a project.
func (c *Client) RequestReport(ctx context.Context, req ReportRequest) (*ReportResponse, error) {
	path := fmt.Sprintf("/api/v1/agent/projects/%s/reports", req.ProjectID)
	var resp ReportResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
