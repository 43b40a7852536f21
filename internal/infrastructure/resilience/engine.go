// Package resilience wraps outbound marketplace calls with retry and fallback policies.
package resilience

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/telemetry"
)

// Policy configures the retry schedule
type Policy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultPolicy returns three attempts with exponential backoff from 500ms
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor >= 1 {
		p.RandomizationFactor = d.RandomizationFactor
	}
	return p
}

// Call describes the outbound call being protected
type Call struct {
	Endpoint string
	Method   string
	UserTag  string
	// TerminateOnFallback stops the process once retries are exhausted
	TerminateOnFallback bool
}

// merge fills unset fields from the run carried in ctx
func (c Call) merge(ctx context.Context) Call {
	info, ok := integration.RunInfoFrom(ctx)
	if !ok {
		return c
	}
	if c.UserTag == "" {
		c.UserTag = info.UserTag
	}
	c.TerminateOnFallback = c.TerminateOnFallback || info.TerminateOnFallback
	return c
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Operation is one attempt of a protected call.
// Returning *integration.TransientHTTPError makes the attempt retryable.
type Operation func(ctx context.Context) (*Response, error)

// Observer receives retry and fallback events, typically for metrics
type Observer interface {
	RecordRetry(ctx context.Context, endpoint, method string)
	RecordFallback(ctx context.Context, endpoint, method string)
}

var _ Observer = (*telemetry.IngestionMetrics)(nil)

// Option configures an Engine
type Option func(*Engine)

// WithObserver attaches an observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithExitFunc replaces os.Exit for terminating fallbacks
func WithExitFunc(exit func(code int)) Option {
	return func(e *Engine) { e.exit = exit }
}

// Engine executes operations under the retry and fallback policies.
// It reports to the sink and never touches business state.
type Engine struct {
	policy   Policy
	sink     integration.ErrorSink
	logger   *zap.Logger
	observer Observer
	exit     func(code int)
}

// NewEngine creates an Engine
func NewEngine(policy Policy, sink integration.ErrorSink, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		policy: policy.withDefaults(),
		sink:   sink,
		logger: logger.Named("resilience"),
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective retry policy
func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialInterval
	b.MaxInterval = e.policy.MaxInterval
	b.Multiplier = e.policy.Multiplier
	b.RandomizationFactor = e.policy.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.policy.MaxAttempts-1)), ctx)
}

// Execute runs op until it succeeds, fails permanently or exhausts its attempts.
// After exhaustion the fallback either returns a *integration.TransientHTTPError
// with Unavailable set, or terminates the process when the call asks for it.
func (e *Engine) Execute(ctx context.Context, call Call, op Operation) (*Response, error) {
	call = call.merge(ctx)
	ctx, span := telemetry.StartSpan(ctx, "resilience.execute",
		telemetry.SpanAttrEndpoint, call.Endpoint,
		telemetry.SpanAttrMethod, call.Method,
	)
	defer span.End()

	var (
		attempts  int
		resp      *Response
		transient *integration.TransientHTTPError
	)
	attempt := func() error {
		attempts++
		r, err := op(ctx)
		if err == nil {
			resp = r
			return nil
		}
		var te *integration.TransientHTTPError
		if errors.As(err, &te) {
			transient = te
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		e.onRetry(ctx, call, attempts, transient, wait)
	}

	err := backoff.RetryNotify(attempt, e.newBackOff(ctx), notify)
	telemetry.SetAttributes(span, telemetry.SpanAttrAttempts, attempts)
	if err == nil {
		return resp, nil
	}

	var te *integration.TransientHTTPError
	if !errors.As(err, &te) || ctx.Err() != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	unavailable := e.fallback(ctx, call, attempts, te)
	telemetry.RecordError(span, unavailable)
	return nil, unavailable
}

func (e *Engine) onRetry(ctx context.Context, call Call, attempt int, cause *integration.TransientHTTPError, wait time.Duration) {
	extra := map[string]any{
		"phase":   "retry",
		"attempt": attempt,
		"wait_ms": wait.Milliseconds(),
	}
	if cause != nil && cause.StatusCode > 0 {
		extra["status"] = cause.StatusCode
	}
	e.logger.Warn("Retrying marketplace call",
		zap.String("endpoint", call.Endpoint),
		zap.String("method", call.Method),
		zap.Int("attempt", attempt),
		zap.Duration("wait", wait),
		zap.Error(cause),
	)
	e.report(ctx, call, cause, extra)
	if e.observer != nil {
		e.observer.RecordRetry(ctx, call.Endpoint, call.Method)
	}
}

func (e *Engine) fallback(ctx context.Context, call Call, attempts int, cause *integration.TransientHTTPError) *integration.TransientHTTPError {
	unavailable := &integration.TransientHTTPError{
		Endpoint:    call.Endpoint,
		Method:      call.Method,
		StatusCode:  cause.StatusCode,
		Attempts:    attempts,
		Unavailable: true,
		Err:         cause.Err,
	}
	extra := map[string]any{
		"phase":     "fallback",
		"attempts":  attempts,
		"terminate": call.TerminateOnFallback,
	}
	if cause.StatusCode > 0 {
		extra["status"] = cause.StatusCode
	}
	e.report(ctx, call, unavailable, extra)
	if e.observer != nil {
		e.observer.RecordFallback(ctx, call.Endpoint, call.Method)
	}

	if call.TerminateOnFallback {
		e.logger.Error("Marketplace unavailable, terminating",
			zap.String("endpoint", call.Endpoint),
			zap.String("method", call.Method),
			zap.String("user_tag", call.UserTag),
			zap.Int("attempts", attempts),
			zap.Error(unavailable),
		)
		_ = e.logger.Sync()
		e.exit(1)
		return unavailable
	}

	e.logger.Error("Marketplace unavailable, giving up",
		zap.String("endpoint", call.Endpoint),
		zap.String("method", call.Method),
		zap.Int("attempts", attempts),
		zap.Error(unavailable),
	)
	return unavailable
}

func (e *Engine) report(ctx context.Context, call Call, err error, extra map[string]any) {
	if e.sink == nil {
		return
	}
	r := integration.NewErrorReport(ctx, integration.ErrorKindTransientHTTP, call.Endpoint, call.Method, err, extra)
	if call.UserTag != "" {
		r.UserTag = call.UserTag
	}
	e.sink.Report(ctx, r)
}
