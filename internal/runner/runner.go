// Package runner orchestrates a compliance run: it drives each template
// through transport, stream decoding, lifecycle tracking, and the
// template's own assertions, reporting live progress to an injected
// sink. Tests run one at a time; sink emissions follow registration
// order, which is the guarantee live renderers rely on.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinhnx/openresponses/internal/config"
	"github.com/vinhnx/openresponses/internal/suite"
	"github.com/vinhnx/openresponses/internal/tracker"
	"github.com/vinhnx/openresponses/internal/transport"
)

// ProgressFunc receives result snapshots: at least one for running and
// exactly one for the terminal status, synchronously with the run.
type ProgressFunc func(Result)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger. The runner stays silent
// without one.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client used for every exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		r.httpClient = c
	}
}

// WithProfile overrides the tracker's protocol profile.
func WithProfile(p tracker.Profile) Option {
	return func(r *Runner) {
		r.profile = p
	}
}

// WithVerbose attaches the exchange to passing results too.
func WithVerbose() Option {
	return func(r *Runner) {
		r.verbose = true
	}
}

// Runner executes templates in order, isolating each: no failure in one
// template prevents the next from running.
type Runner struct {
	logger     *slog.Logger
	httpClient *http.Client
	profile    tracker.Profile
	verbose    bool
	tracer     trace.Tracer
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		profile: tracker.DefaultProfile(),
		tracer:  otel.Tracer("openresponses/runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the given templates against cfg. Every template produces
// exactly one terminal result; the returned summary is a pure function
// of those statuses.
func (r *Runner) Run(ctx context.Context, cfg config.TestConfig, templates []suite.Template, onProgress ProgressFunc) Summary {
	opts := []transport.Option{transport.WithTimeout(cfg.Timeout())}
	if r.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(r.httpClient))
	}
	adapter := transport.New(opts...)

	emit := func(res Result) {
		if onProgress != nil {
			onProgress(res)
		}
	}

	summary := Summary{Total: len(templates)}
	for _, tpl := range templates {
		res := Result{ID: tpl.ID, Name: tpl.Name, Status: StatusPending}

		res.Status = StatusRunning
		emit(res)

		r.runOne(ctx, adapter, cfg, tpl, &res)

		if len(res.Errors) == 0 {
			res.Status = StatusPassed
			summary.Passed++
		} else {
			res.Status = StatusFailed
			summary.Failed++
		}
		if r.logger != nil {
			r.logger.Info("test finished",
				slog.String("id", res.ID),
				slog.String("status", string(res.Status)),
				slog.Int64("duration_ms", res.DurationMS),
				slog.Int("errors", len(res.Errors)),
			)
		}
		emit(res)
	}
	return summary
}

// runOne executes a single template, funneling transport errors, parser
// violations, tracker violations, and assertion failures into
// res.Errors. A defective template is contained here: a panic from
// Build or Evaluate fails this test only.
func (r *Runner) runOne(ctx context.Context, adapter *transport.Adapter, cfg config.TestConfig, tpl suite.Template, res *Result) {
	ctx, span := r.tracer.Start(ctx, "compliance.test",
		trace.WithAttributes(attribute.String("test.id", tpl.ID)))
	defer func() {
		span.SetAttributes(attribute.Int("test.errors", len(res.Errors)))
		span.End()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("harness defect in template %s: %v", tpl.ID, rec))
		}
	}()

	spec := tpl.Build(cfg)
	start := time.Now()
	ex := adapter.Send(ctx, spec)
	res.DurationMS = time.Since(start).Milliseconds()

	ev := &suite.Evaluation{Exchange: ex}

	if spec.Stream {
		res.StreamEvents = len(ex.Events)
		ev.Outcome = tracker.Track(ex.Events, r.profile)
	}

	if ex.Err != nil && !tpl.AllowTransportError {
		res.Errors = append(res.Errors, ex.Err.Error())
	}
	if ex.ParseViolation != nil {
		res.Errors = append(res.Errors, ex.ParseViolation.String())
	}
	if ev.Outcome != nil {
		for _, v := range ev.Outcome.Violations {
			res.Errors = append(res.Errors, v.String())
		}
	}

	// Assertions still run on a failed transport when the template
	// expects one; otherwise the transport error already tells the
	// whole story.
	if ex.Err == nil || tpl.AllowTransportError {
		for _, v := range tpl.Evaluate(ev) {
			res.Errors = append(res.Errors, v.String())
		}
	}

	if len(res.Errors) > 0 || r.verbose {
		res.Request = &spec
		if len(ex.Body) > 0 {
			res.Response = ex.Body
		}
	}
}
