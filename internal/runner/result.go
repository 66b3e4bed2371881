package runner

import (
	"encoding/json"

	"github.com/vinhnx/openresponses/internal/transport"
)

// Status is the lifecycle state of one test result.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Result is the record for one template in one run. The orchestrator
// owns it exclusively and hands copies to the progress sink; once a
// terminal status is set the result never changes again. The shape is
// stable and safe to serialize verbatim into a structured report.
type Result struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	DurationMS int64 `json:"duration_ms,omitempty"`

	// StreamEvents counts decoded events; present for streaming tests.
	StreamEvents int `json:"stream_events,omitempty"`

	Errors []string `json:"errors,omitempty"`

	// Request and Response are attached on failure (and in verbose
	// runs) so a report can show the offending exchange.
	Request  *transport.RequestSpec `json:"request,omitempty"`
	Response json.RawMessage        `json:"response,omitempty"`
}

// Summary aggregates final statuses for one run.
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Ok reports whether no test failed. Translating this into a process
// exit status is the caller's responsibility.
func (s Summary) Ok() bool {
	return s.Failed == 0
}
