package report

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/vinhnx/openresponses/internal/runner"
	"github.com/vinhnx/openresponses/internal/transport"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "report.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, "http://localhost:8090/v1", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	passed := runner.Result{ID: "basic", Name: "Non-streaming round trip", Status: runner.StatusPassed, DurationMS: 42}
	failed := runner.Result{
		ID: "stream", Name: "Streaming round trip", Status: runner.StatusFailed,
		DurationMS: 99, StreamEvents: 7,
		Errors: []string{"[dangling-item] item item_1 never reached a terminal state"},
		Request: &transport.RequestSpec{
			Method: http.MethodPost,
			URL:    "http://localhost:8090/v1/responses",
			Body:   []byte(`{"model":"m"}`),
			Stream: true,
		},
		Response: json.RawMessage(`{"error":{"message":"boom"}}`),
	}
	for _, res := range []runner.Result{passed, failed} {
		if err := s.RecordResult(ctx, runID, res); err != nil {
			t.Fatalf("RecordResult(%s) error = %v", res.ID, err)
		}
	}

	sum := runner.Summary{Passed: 1, Failed: 1, Total: 2}
	if err := s.FinishRun(ctx, runID, sum); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != runID {
		t.Errorf("run id = %q, want %q", got.ID, runID)
	}
	if got.Target != "http://localhost:8090/v1" || got.Model != "gpt-4o-mini" {
		t.Errorf("run target/model = %q/%q", got.Target, got.Model)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt = nil, want stamped")
	}
	if got.Summary != sum {
		t.Errorf("summary = %+v, want %+v", got.Summary, sum)
	}

	results, err := s.Results(ctx, runID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	byID := map[string]runner.Result{}
	for _, res := range results {
		byID[res.ID] = res
	}
	if byID["basic"].Status != runner.StatusPassed {
		t.Errorf("basic status = %v, want passed", byID["basic"].Status)
	}
	gotFailed := byID["stream"]
	if gotFailed.Status != runner.StatusFailed || gotFailed.StreamEvents != 7 {
		t.Errorf("stream result = %+v", gotFailed)
	}
	if len(gotFailed.Errors) != 1 {
		t.Errorf("stream errors = %v, want one", gotFailed.Errors)
	}
	if gotFailed.Request == nil || !gotFailed.Request.Stream {
		t.Errorf("stream request = %+v, want streaming spec restored", gotFailed.Request)
	}
	if string(gotFailed.Response) != `{"error":{"message":"boom"}}` {
		t.Errorf("stream response = %s", gotFailed.Response)
	}
}

func TestStore_RecordResultReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, "http://x/v1", "m")
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	res := runner.Result{ID: "basic", Name: "n", Status: runner.StatusRunning}
	if err := s.RecordResult(ctx, runID, res); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	res.Status = runner.StatusPassed
	res.DurationMS = 10
	if err := s.RecordResult(ctx, runID, res); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}

	results, err := s.Results(ctx, runID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 after replace", len(results))
	}
	if results[0].Status != runner.StatusPassed {
		t.Errorf("status = %v, want passed", results[0].Status)
	}
}

func TestStore_ListRunsOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.BeginRun(ctx, "http://x/v1", "m")
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	second, err := s.BeginRun(ctx, "http://x/v1", "m")
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want limit applied", len(runs))
	}
	if runs[0].ID != second && runs[0].ID != first {
		t.Errorf("unexpected run id %q", runs[0].ID)
	}

	runs, err = s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("len(runs) = %d, want 2", len(runs))
	}
}

func TestStore_ResultsUnknownRun(t *testing.T) {
	s := openTestStore(t)
	results, err := s.Results(context.Background(), "run_missing")
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}
