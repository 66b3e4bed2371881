package compliance

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/vinhnx/openresponses/internal/refserver"
	"github.com/vinhnx/openresponses/internal/report"
	"github.com/vinhnx/openresponses/internal/runner"
)

const testAPIKey = "sk-reference"

func referenceTarget(t *testing.T, faults refserver.Faults) TestConfig {
	t.Helper()
	ts := httptest.NewServer(refserver.New(
		refserver.WithAPIKey(testAPIKey),
		refserver.WithFaults(faults),
	).Router())
	t.Cleanup(ts.Close)

	return TestConfig{
		BaseURL:        ts.URL + "/v1",
		APIKey:         testAPIKey,
		Model:          "scripted-1",
		AuthHeader:     "Authorization",
		BearerPrefix:   true,
		TimeoutSeconds: 10,
	}
}

func TestHarness_FullSuiteAgainstReferenceServer(t *testing.T) {
	h, err := New(WithConfig(referenceTarget(t, refserver.Faults{})))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer h.Close()

	var order []string
	summary, results, err := h.Run(context.Background(), func(res Result) {
		if res.Status == runner.StatusRunning {
			order = append(order, res.ID)
		}
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !summary.Ok() {
		for _, res := range results {
			if res.Status == runner.StatusFailed {
				t.Errorf("%s failed: %v", res.ID, res.Errors)
			}
		}
		t.Fatalf("summary = %+v, want all passing", summary)
	}

	ids := TemplateIDs()
	if summary.Total != len(ids) {
		t.Errorf("Total = %d, want %d", summary.Total, len(ids))
	}
	if len(order) != len(ids) {
		t.Fatalf("running emissions = %v, want one per template", order)
	}
	for i, id := range ids {
		if order[i] != id {
			t.Errorf("order[%d] = %q, want %q", i, order[i], id)
		}
	}
}

func TestHarness_FaultyServerFailsStreamTests(t *testing.T) {
	cfg := referenceTarget(t, refserver.Faults{SkipCompleted: true})

	h, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer h.Close()

	summary, results, err := h.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Ok() {
		t.Fatal("summary.Ok() = true against a faulty server")
	}
	// Every template still ran; the fault only breaks streaming tests.
	if summary.Total != len(TemplateIDs()) {
		t.Errorf("Total = %d, want %d", summary.Total, len(TemplateIDs()))
	}
	byID := map[string]Result{}
	for _, res := range results {
		byID[res.ID] = res
	}
	if byID["stream"].Status != runner.StatusFailed {
		t.Errorf("stream status = %v, want failed", byID["stream"].Status)
	}
	if byID["basic"].Status != runner.StatusPassed {
		t.Errorf("basic status = %v, want passed", byID["basic"].Status)
	}
}

func TestHarness_FilterSubset(t *testing.T) {
	h, err := New(
		WithConfig(referenceTarget(t, refserver.Faults{})),
		WithFilter("usage", "basic"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer h.Close()

	if got := len(h.Templates()); got != 2 {
		t.Fatalf("Templates() = %d, want 2", got)
	}

	summary, results, err := h.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Total != 2 || !summary.Ok() {
		t.Errorf("summary = %+v, want 2 passing", summary)
	}
	// Registration order wins over filter argument order.
	if results[0].ID != "basic" || results[1].ID != "usage" {
		t.Errorf("result order = %s, %s, want basic, usage", results[0].ID, results[1].ID)
	}
}

func TestHarness_UnknownFilterRejected(t *testing.T) {
	_, err := New(
		WithConfig(referenceTarget(t, refserver.Faults{})),
		WithFilter("no-such-template"),
	)
	if err == nil {
		t.Fatal("New() error = nil, want unknown template id")
	}
}

func TestHarness_InvalidConfigRejected(t *testing.T) {
	if _, err := New(WithConfig(TestConfig{Model: "m"})); err == nil {
		t.Fatal("New() error = nil, want base_url validation error")
	}
}

func TestHarness_StorePersistsRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "report.db")

	h, err := New(
		WithConfig(referenceTarget(t, refserver.Faults{})),
		WithFilter("basic"),
		WithStore(dbPath),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	summary, _, err := h.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store, err := report.Open(dbPath)
	if err != nil {
		t.Fatalf("report.Open() error = %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Summary != summary {
		t.Errorf("stored summary = %+v, want %+v", runs[0].Summary, summary)
	}
	if runs[0].FinishedAt == nil {
		t.Error("FinishedAt = nil, want stamped")
	}

	stored, err := store.Results(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(stored) != 1 || stored[0].ID != "basic" {
		t.Errorf("stored results = %+v, want the basic test", stored)
	}
}
