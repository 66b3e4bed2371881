// Package compliance provides the public API for embedding the
// Responses compliance harness. This is the stable surface for external
// consumers; presentation, credential sourcing, and exit-code policy
// stay on the caller's side.
//
// Example:
//
//	h, err := compliance.New(
//	    compliance.WithFileConfig("compliance.yaml"),
//	    compliance.WithFilter("basic", "stream"),
//	)
//	summary, results, err := h.Run(ctx, onProgress)
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vinhnx/openresponses/internal/config"
	"github.com/vinhnx/openresponses/internal/report"
	"github.com/vinhnx/openresponses/internal/runner"
	"github.com/vinhnx/openresponses/internal/suite"
	"github.com/vinhnx/openresponses/internal/tracker"
)

// Re-exported engine types consumers need to read results.
type (
	Result       = runner.Result
	Summary      = runner.Summary
	ProgressFunc = runner.ProgressFunc
	TestConfig   = config.TestConfig
)

// TemplateIDs lists the registered template ids in registration order,
// for building filter and help surfaces.
func TemplateIDs() []string {
	return suite.IDs()
}

// Option configures a Harness.
type Option func(*Harness) error

// WithConfig supplies an already-resolved configuration.
func WithConfig(cfg TestConfig) Option {
	return func(h *Harness) error {
		h.cfg = &cfg
		return nil
	}
}

// WithFileConfig resolves configuration from the environment plus the
// given YAML file.
func WithFileConfig(path string) Option {
	return func(h *Harness) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		h.cfg = cfg
		return nil
	}
}

// WithLogger sets the structured logger used by the run.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) error {
		h.logger = logger
		return nil
	}
}

// WithStore persists run results to the SQLite database at path.
func WithStore(path string) Option {
	return func(h *Harness) error {
		store, err := report.Open(path)
		if err != nil {
			return err
		}
		h.store = store
		return nil
	}
}

// WithFilter restricts the run to the given template ids. Unknown ids
// fail at construction, before anything runs.
func WithFilter(ids ...string) Option {
	return func(h *Harness) error {
		h.filter = ids
		return nil
	}
}

// WithHTTPClient overrides the HTTP client, e.g. for recorded fixtures.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Harness) error {
		h.httpClient = c
		return nil
	}
}

// WithProfile overrides the tracker's protocol profile.
func WithProfile(p tracker.Profile) Option {
	return func(h *Harness) error {
		h.profile = &p
		return nil
	}
}

// WithVerbose attaches the exchange to passing results too.
func WithVerbose() Option {
	return func(h *Harness) error {
		h.verbose = true
		return nil
	}
}

// Harness runs the compliance suite against one target.
type Harness struct {
	cfg        *config.TestConfig
	logger     *slog.Logger
	store      *report.Store
	filter     []string
	httpClient *http.Client
	profile    *tracker.Profile
	verbose    bool

	templates []suite.Template
}

// New builds a Harness. Configuration must come from WithConfig or
// WithFileConfig; the filter is validated here so callers can reject
// unknown ids before invoking the engine.
func New(opts ...Option) (*Harness, error) {
	h := &Harness{}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.cfg == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		h.cfg = cfg
	}
	if err := h.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	templates, err := suite.Filter(suite.Registry(), h.filter)
	if err != nil {
		return nil, err
	}
	h.templates = templates
	return h, nil
}

// Templates returns the templates this harness will run, in order.
func (h *Harness) Templates() []suite.Template {
	return h.templates
}

// Close releases the result store, if one was opened.
func (h *Harness) Close() error {
	if h.store != nil {
		return h.store.Close()
	}
	return nil
}

// Run executes the suite. onProgress observes every status transition;
// the returned slice holds the terminal result of each template in
// registration order. The summary is the input for the caller's
// exit-code decision.
func (h *Harness) Run(ctx context.Context, onProgress ProgressFunc) (Summary, []Result, error) {
	opts := []runner.Option{}
	if h.logger != nil {
		opts = append(opts, runner.WithLogger(h.logger))
	}
	if h.httpClient != nil {
		opts = append(opts, runner.WithHTTPClient(h.httpClient))
	}
	if h.profile != nil {
		opts = append(opts, runner.WithProfile(*h.profile))
	}
	if h.verbose {
		opts = append(opts, runner.WithVerbose())
	}
	r := runner.New(opts...)

	var runID string
	if h.store != nil {
		var err error
		runID, err = h.store.BeginRun(ctx, h.cfg.BaseURL, h.cfg.Model)
		if err != nil {
			return Summary{}, nil, fmt.Errorf("failed to begin recorded run: %w", err)
		}
	}

	var finals []Result
	sink := func(res Result) {
		if res.Status == runner.StatusPassed || res.Status == runner.StatusFailed {
			finals = append(finals, res)
			if h.store != nil {
				if err := h.store.RecordResult(ctx, runID, res); err != nil && h.logger != nil {
					h.logger.Error("failed to record result",
						slog.String("id", res.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		if onProgress != nil {
			onProgress(res)
		}
	}

	summary := r.Run(ctx, *h.cfg, h.templates, sink)

	if h.store != nil {
		if err := h.store.FinishRun(ctx, runID, summary); err != nil {
			return summary, finals, fmt.Errorf("failed to finish recorded run: %w", err)
		}
	}
	return summary, finals, nil
}
