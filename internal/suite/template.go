// Package suite holds the compliance test catalog: an ordered, immutable
// registry of templates, each pairing a pure request builder with a pure
// evaluator over the captured exchange.
package suite

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vinhnx/openresponses/internal/config"
	"github.com/vinhnx/openresponses/internal/protocol"
	"github.com/vinhnx/openresponses/internal/tracker"
	"github.com/vinhnx/openresponses/internal/transport"
)

// Evaluation bundles everything a template may assert on: the captured
// exchange and, for streaming tests, the tracker's reconstruction.
type Evaluation struct {
	Exchange *transport.Exchange

	// Outcome is set for streaming exchanges.
	Outcome *tracker.Outcome
}

// Template is one registered compliance test. Build and Evaluate are
// pure: they perform no I/O and depend only on their inputs. IDs are
// stable across releases; external callers use them as filter keys.
type Template struct {
	ID   string
	Name string

	// Build derives the request to send from the run configuration.
	Build func(cfg config.TestConfig) transport.RequestSpec

	// Evaluate checks the captured exchange; an empty result is a pass.
	Evaluate func(ev *Evaluation) []protocol.Violation

	// AllowTransportError marks templates whose expectation is a
	// non-2xx status. For these the orchestrator hands the exchange to
	// Evaluate instead of failing the test outright.
	AllowTransportError bool
}

// Registry returns the fixed, ordered catalog of builtin templates. The
// returned slice is a fresh copy; callers may subset it freely.
func Registry() []Template {
	out := make([]Template, len(builtins))
	copy(out, builtins)
	return out
}

// IDs lists the registered template ids in registration order, for
// building filter and help surfaces.
func IDs() []string {
	ids := make([]string, len(builtins))
	for i, t := range builtins {
		ids[i] = t.ID
	}
	return ids
}

// Filter subsets templates to the given ids, preserving registration
// order regardless of the order ids are given in. Unknown ids are an
// error so callers can reject them before a run starts.
func Filter(templates []Template, ids []string) ([]Template, error) {
	if len(ids) == 0 {
		return templates, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Template
	for _, t := range templates {
		if want[t.ID] {
			out = append(out, t)
			delete(want, t.ID)
		}
	}
	for id := range want {
		return nil, fmt.Errorf("unknown template id %q", id)
	}
	return out, nil
}

// responsesURL joins the base URL with the responses path.
func responsesURL(cfg config.TestConfig) string {
	return cfg.BaseURL + "/responses"
}

// authHeader builds the credential header per the configured shape.
func authHeader(cfg config.TestConfig) http.Header {
	h := http.Header{}
	value := cfg.APIKey
	if cfg.BearerPrefix {
		value = "Bearer " + value
	}
	h.Set(cfg.AuthHeader, value)
	return h
}

// buildSpec marshals req into a ready-to-send RequestSpec.
func buildSpec(cfg config.TestConfig, req protocol.Request) transport.RequestSpec {
	body, _ := json.Marshal(req)
	return transport.RequestSpec{
		Method: http.MethodPost,
		URL:    responsesURL(cfg),
		Header: authHeader(cfg),
		Body:   body,
		Stream: req.Stream,
	}
}

// fail is shorthand for an assertion-level violation.
func fail(format string, args ...any) protocol.Violation {
	return protocol.Violationf(protocol.ViolationAssertion, format, args...)
}
