package goflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewClient(ClientConfig{BaseURL: srv.URL, BearerToken: "tok", MaxAttempts: 2}, zap.NewNop())
	return c, srv
}

func TestNextJobReturnsJob(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(Job{JobID: "j1", ProjectID: "p1", MediaID: "m1", AnalysisID: "a1"})
	})
	defer srv.Close()

	job, err := c.NextJob(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.JobID != "j1" || job.ProjectID != "p1" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestNextJobNoneAvailable(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	defer srv.Close()

	job, err := c.NextJob(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestAuthErrorIsNotRetried(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := c.NextJob(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable error, got %d", calls)
	}
}

func TestServerErrorIsRetriedUpToMaxAttempts(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := c.NextJob(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts (MaxAttempts=2), got %d", calls)
	}
}

func TestSubmitResultPostsToPath(t *testing.T) {
	var gotPath string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := c.SubmitResult(context.Background(), "p1", "m1", "a1", ResultPayload{Success: true})
	if err != nil {
		t.Fatal(err)
	}
	want := "/api/v1/agent/projects/p1/media/m1/analysis/a1"
	if gotPath != want {
		t.Fatalf("expected path %q, got %q", want, gotPath)
	}
}
