package goflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type recordingServer struct {
	mu       sync.Mutex
	statuses []JobStatusUpdate
	results  []ResultPayload
}

func newDriverFixture(t *testing.T, job *Job) (*Driver, *recordingServer) {
	t.Helper()
	rec := &recordingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agent/next-job", func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(job)
	})
	mux.HandleFunc("/api/v1/agent/projects/p1/status", func(w http.ResponseWriter, r *http.Request) {
		var u JobStatusUpdate
		json.NewDecoder(r.Body).Decode(&u)
		rec.mu.Lock()
		rec.statuses = append(rec.statuses, u)
		rec.mu.Unlock()
	})
	mux.HandleFunc("/api/v1/agent/projects/p1/media/m1/analysis/a1", func(w http.ResponseWriter, r *http.Request) {
		var p ResultPayload
		json.NewDecoder(r.Body).Decode(&p)
		rec.mu.Lock()
		rec.results = append(rec.results, p)
		rec.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL, BearerToken: "tok"}, zap.NewNop())
	return NewDriver(client, zap.NewNop()), rec
}

func TestRunOnceNoJobAvailable(t *testing.T) {
	driver, _ := newDriverFixture(t, nil)
	result := driver.RunOnce(context.Background(), func(ctx context.Context, j *Job) (map[string]interface{}, error) {
		t.Fatal("processor should not run with no job available")
		return nil, nil
	}, false)
	if result.Processed {
		t.Fatalf("expected processed=false, got %+v", result)
	}
}

func TestRunOnceSuccessPublishesInProgressThenCompleted(t *testing.T) {
	job := &Job{ProjectID: "p1", MediaID: "m1", AnalysisID: "a1"}
	driver, rec := newDriverFixture(t, job)

	result := driver.RunOnce(context.Background(), func(ctx context.Context, j *Job) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}, false)

	if !result.Processed || !result.Success {
		t.Fatalf("expected processed+success, got %+v", result)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.statuses) != 2 {
		t.Fatalf("expected 2 status publishes, got %d", len(rec.statuses))
	}
	if rec.statuses[0].Status != "in_progress" || *rec.statuses[0].Progress != 0.0 {
		t.Fatalf("expected first status in_progress/0.0, got %+v", rec.statuses[0])
	}
	if rec.statuses[1].Status != "completed" || *rec.statuses[1].Progress != 1.0 {
		t.Fatalf("expected second status completed/1.0, got %+v", rec.statuses[1])
	}
	if len(rec.results) != 1 || !rec.results[0].Success {
		t.Fatalf("expected one successful result submission, got %+v", rec.results)
	}
}

func TestRunOnceProcessorFailurePublishesFailedAndReturns(t *testing.T) {
	job := &Job{ProjectID: "p1", MediaID: "m1", AnalysisID: "a1"}
	driver, rec := newDriverFixture(t, job)

	result := driver.RunOnce(context.Background(), func(ctx context.Context, j *Job) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	}, false)

	if !result.Processed || result.Success {
		t.Fatalf("expected processed=true, success=false, got %+v", result)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.statuses) != 2 || rec.statuses[0].Status != "in_progress" || rec.statuses[1].Status != "failed" {
		t.Fatalf("expected in_progress then failed status publishes, got %+v", rec.statuses)
	}
	if len(rec.results) != 0 {
		t.Fatalf("expected no result submission on processor failure, got %+v", rec.results)
	}
}
