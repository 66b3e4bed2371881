// Package transport issues a single request/response or request/stream
// exchange against the target endpoint. It knows nothing about test
// semantics: failures are captured on the Exchange, never raised.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vinhnx/openresponses/internal/protocol"
	"github.com/vinhnx/openresponses/internal/stream"
)

const defaultTimeout = 120 * time.Second

// RequestSpec describes one request to send. Build functions derive it
// from the run configuration; the adapter sends it verbatim.
type RequestSpec struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
	Stream bool        `json:"stream"`
}

// Exchange captures everything observed during one exchange: the spec
// actually sent, the final body or the decoded event sequence, timing,
// and any transport-level failure.
type Exchange struct {
	Spec       RequestSpec
	StatusCode int

	// Body is the raw final JSON body for non-streaming exchanges,
	// or the error body for a non-2xx status.
	Body json.RawMessage

	// Events is the decoded event sequence for streaming exchanges,
	// drained to completion before Send returns.
	Events []protocol.StreamEvent

	// ParseViolation is set when the stream ended on a framing error.
	ParseViolation *protocol.Violation

	// Duration measures dispatch to fully-drained exchange.
	Duration time.Duration

	// Err is the transport-level failure, if any: dial, TLS, timeout,
	// or a non-2xx status.
	Err error
}

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client. The client's transport is
// used as-is, so test doubles and recorders plug in here.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.client = c
	}
}

// WithTimeout bounds each exchange, including full stream drain.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// Adapter sends compliance exchanges. It never retries: the suite must
// observe the server's real first-attempt behavior.
type Adapter struct {
	client  *http.Client
	timeout time.Duration
}

// New creates an adapter. The default client wraps the standard
// transport with otelhttp so each exchange produces a client span.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send performs the exchange described by spec. It always returns an
// Exchange; transport failures land in Exchange.Err so the caller can
// downgrade them to a failed result without special cases.
func (a *Adapter) Send(ctx context.Context, spec RequestSpec) *Exchange {
	ex := &Exchange{Spec: spec}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer func() { ex.Duration = time.Since(start) }()

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		ex.Err = fmt.Errorf("failed to create request: %w", err)
		return ex
	}
	for k, vs := range spec.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" && len(spec.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if spec.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		ex.Err = fmt.Errorf("request failed: %w", err)
		return ex
	}
	defer resp.Body.Close()

	ex.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		ex.Body = respBody
		ex.Err = statusError(resp.StatusCode, respBody)
		return ex
	}

	if spec.Stream {
		ex.Events, ex.ParseViolation = stream.Decode(resp.Body)
		if ctx.Err() != nil {
			ex.Err = fmt.Errorf("stream aborted: %w", ctx.Err())
		}
		return ex
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		ex.Err = fmt.Errorf("failed to read response body: %w", err)
		return ex
	}
	ex.Body = respBody
	return ex
}

// statusError turns a non-2xx status into a descriptive error, using
// the protocol error body when it parses.
func statusError(status int, body []byte) error {
	var apiErr protocol.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("API error (status %d, %s): %s", status, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("API error (status %d): %s", status, string(body))
}
