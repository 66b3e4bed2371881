package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vinhnx/openresponses/internal/protocol"
	"github.com/vinhnx/openresponses/internal/testutil"
)

func TestSend_NonStreaming(t *testing.T) {
	var gotAuth, gotContentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"resp_1","object":"response","status":"completed","output":[]}`)
	}))
	defer ts.Close()

	spec := RequestSpec{
		Method: http.MethodPost,
		URL:    ts.URL + "/v1/responses",
		Header: http.Header{"Authorization": {"Bearer test-key"}},
		Body:   []byte(`{"model":"m","input":"hi"}`),
	}

	ex := New().Send(context.Background(), spec)
	if ex.Err != nil {
		t.Fatalf("Send() Err = %v, want nil", ex.Err)
	}
	if ex.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", ex.StatusCode)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization header = %q, want bearer credential", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}

	var resp protocol.Response
	if err := json.Unmarshal(ex.Body, &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.Status != protocol.StatusCompleted {
		t.Errorf("response status = %q, want completed", resp.Status)
	}
	if ex.Duration <= 0 {
		t.Error("Duration = 0, want measured")
	}
}

func TestSend_StreamingDrainsEvents(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: response.created\n")
		fmt.Fprint(w, `data: {"type":"response.created","sequence_number":0}`+"\n\n")
		fmt.Fprint(w, "event: response.completed\n")
		fmt.Fprint(w, `data: {"type":"response.completed","sequence_number":1}`+"\n\n")
	}))
	defer ts.Close()

	spec := RequestSpec{Method: http.MethodPost, URL: ts.URL, Body: []byte(`{}`), Stream: true}

	ex := New().Send(context.Background(), spec)
	if ex.Err != nil {
		t.Fatalf("Send() Err = %v, want nil", ex.Err)
	}
	if ex.ParseViolation != nil {
		t.Fatalf("ParseViolation = %v, want nil", ex.ParseViolation)
	}
	if len(ex.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(ex.Events))
	}
	if ex.Events[0].Kind != protocol.EventResponseCreated || ex.Events[1].Kind != protocol.EventResponseCompleted {
		t.Errorf("event kinds = %v, %v", ex.Events[0].Kind, ex.Events[1].Kind)
	}
}

func TestSend_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"invalid_api_key","message":"bad key"}}`)
	}))
	defer ts.Close()

	ex := New().Send(context.Background(), RequestSpec{Method: http.MethodPost, URL: ts.URL, Body: []byte(`{}`)})

	if ex.Err == nil {
		t.Fatal("Send() Err = nil, want status error")
	}
	if ex.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", ex.StatusCode)
	}
	if !strings.Contains(ex.Err.Error(), "bad key") {
		t.Errorf("Err = %v, want API error message included", ex.Err)
	}
	if len(ex.Body) == 0 {
		t.Error("Body = empty, want error body captured")
	}
}

func TestSend_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()

	a := New(WithTimeout(50 * time.Millisecond))
	ex := a.Send(context.Background(), RequestSpec{Method: http.MethodPost, URL: ts.URL, Body: []byte(`{}`)})

	if ex.Err == nil {
		t.Fatal("Send() Err = nil, want timeout error")
	}
	if ex.Duration >= time.Second {
		t.Errorf("Duration = %v, want well under the handler sleep", ex.Duration)
	}
}

func TestSend_ReplayedExchange(t *testing.T) {
	rec, cleanup := testutil.NewVCRRecorder(t, "responses_basic")
	defer cleanup()

	a := New(WithHTTPClient(testutil.VCRHTTPClient(rec)))
	ex := a.Send(context.Background(), RequestSpec{
		Method: http.MethodPost,
		URL:    "http://reference.local/v1/responses",
		Body:   []byte(`{"model":"scripted-1","input":"Reply with exactly the word: pong"}`),
	})
	if ex.Err != nil {
		t.Fatalf("Send() Err = %v, want replayed response", ex.Err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(ex.Body, &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.ID != "resp_vcr_1" || resp.Status != protocol.StatusCompleted {
		t.Errorf("replayed response = %+v", resp)
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	ex := New().Send(context.Background(), RequestSpec{
		Method: http.MethodPost,
		URL:    "http://127.0.0.1:1/responses",
		Body:   []byte(`{}`),
	})
	if ex.Err == nil {
		t.Fatal("Send() Err = nil, want dial error")
	}
}
