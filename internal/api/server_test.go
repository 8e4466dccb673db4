// File path: internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auditkit/sopcheck/internal/common/retry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/extractor"
	"github.com/auditkit/sopcheck/internal/indexer"
	"github.com/auditkit/sopcheck/internal/llm"
	"github.com/auditkit/sopcheck/internal/pipeline"
	"github.com/auditkit/sopcheck/internal/reasoner"
	"github.com/auditkit/sopcheck/internal/retriever"
	"github.com/auditkit/sopcheck/internal/sop"
	"github.com/auditkit/sopcheck/internal/vector"
)

type memStore struct {
	records map[string]vector.Record
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	rec, ok := m.records[id]
	return ok && len(rec.Vector) > 0, nil
}

func (m *memStore) Upsert(_ context.Context, records []vector.Record) error {
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *memStore) Search(_ context.Context, vec []float32, limit int) ([]vector.Match, error) {
	var out []vector.Match
	for _, rec := range m.records {
		out = append(out, vector.Match{ID: rec.ID, Score: vector.Cosine(vec, rec.Vector), Text: rec.Text, Metadata: rec.Metadata})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Count(context.Context) (int, error) { return len(m.records), nil }
func (m *memStore) Close() error                       { return nil }

type stubProvider struct{}

func (stubProvider) Chat(context.Context, []llm.Message) (string, error) {
	return `{"status":"Compliant","rationale":"procedure covers the clause"}`, nil
}

func (stubProvider) Embed(_ context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubProvider) Name() string { return "stub" }

func testServer() *Server {
	store := &memStore{records: make(map[string]vector.Record)}
	provider := stubProvider{}
	fast := retry.Policy{Attempts: 2, Backoff: time.Millisecond}
	runner := pipeline.NewRunner(
		sop.NewSegmenter(),
		extractor.New(),
		indexer.New(store, provider, indexer.WithRetryPolicy(fast)),
		retriever.New(store, provider, 0.1, 2, retriever.WithRetryPolicy(fast)),
		reasoner.New(provider, reasoner.WithRetryPolicy(fast)),
		store,
		2,
	)
	return NewServer(runner)
}

func TestHealthz(t *testing.T) {
	srv := testServer()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestStartRunValidation(t *testing.T) {
	srv := testServer()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(`{"mode":"full"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing sop_text should 400, got %d", rec.Code)
	}
}

func TestRunLifecycle(t *testing.T) {
	srv := testServer()
	body, _ := json.Marshal(map[string]any{
		"sop_text": "# Receiving\nMaterials are logged on arrival.",
		"documents": []map[string]string{
			{"id": "reg-a", "text": "1. Materials must be logged on arrival."},
		},
		"mode": "full",
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBuffer(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start run status = %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if started.ID == "" || started.Status != RunRunning {
		t.Fatalf("start response = %+v", started)
	}

	// The run is asynchronous; poll until it settles.
	deadline := time.Now().Add(5 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		rec = httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+started.ID, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status endpoint = %d", rec.Code)
		}
		var state struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		status = state.Status
		if status != RunRunning {
			if state.Error != "" {
				t.Fatalf("run failed: %s", state.Error)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status != RunSucceeded {
		t.Fatalf("run did not succeed in time, status = %q", status)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+started.ID+"/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("report endpoint = %d: %s", rec.Code, rec.Body.String())
	}
	var built compliance.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &built); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if built.RunID != started.ID {
		t.Fatalf("report run id = %q, want %q", built.RunID, started.ID)
	}
	if len(built.Sections) == 0 {
		t.Fatalf("report has no sections")
	}
}

func TestUnknownRun(t *testing.T) {
	srv := testServer()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope/report", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run report status = %d", rec.Code)
	}
}
