package formz

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// -----------------------------------------------------------------------------
// Call Options
// -----------------------------------------------------------------------------

// Option adjusts a single control or coordinator call.
type Option func(*callOptions)

type callOptions struct {
	onlySelf  bool
	emitEvent bool
	force     bool
	fromView  bool
}

func resolveOptions(opts []Option) callOptions {
	o := callOptions{emitEvent: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// toOptions converts resolved options back into a slice for forwarding.
func (o callOptions) toOptions() []Option {
	var out []Option
	if o.onlySelf {
		out = append(out, OnlySelf())
	}
	if !o.emitEvent {
		out = append(out, Silent())
	}
	if o.force {
		out = append(out, Force())
	}
	if o.fromView {
		out = append(out, FromView())
	}
	return out
}

// OnlySelf limits the call to the control itself; ancestors are not
// revalidated.
func OnlySelf() Option {
	return func(o *callOptions) {
		o.onlySelf = true
	}
}

// Silent suppresses value and status change notifications.
func Silent() Option {
	return func(o *callOptions) {
		o.emitEvent = false
	}
}

// Force overrides protections: enabling clears unmanaged disable state, and
// removing validators strips ones that existed before any context added them.
func Force() Option {
	return func(o *callOptions) {
		o.force = true
	}
}

// FromView marks a value write as coming from a bound view, so the view is
// not written back to.
func FromView() Option {
	return func(o *callOptions) {
		o.fromView = true
	}
}

// -----------------------------------------------------------------------------
// Pipeline Options
// -----------------------------------------------------------------------------

// PipelineOption wraps the engine's cycle pipeline with middleware.
//
// Instance configuration (debounce, scheduler, equality, etc.) is handled
// via chainable methods on the Engine before calling Start().
type PipelineOption[C any] func(pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]]

var (
	middlewareID     = pipz.NewIdentity("formz:middleware", "Cycle middleware sequence")
	timeoutID        = pipz.NewIdentity("formz:timeout", "Cycle timeout")
	errorHandlerID   = pipz.NewIdentity("formz:error-handler", "Cycle error observer")
	retryID          = pipz.NewIdentity("formz:retry", "Retries failed cycles")
	backoffID        = pipz.NewIdentity("formz:backoff", "Retries failed cycles with exponential backoff")
	fallbackID       = pipz.NewIdentity("formz:fallback", "Falls back to alternate cycle processors")
	circuitBreakerID = pipz.NewIdentity("formz:circuit-breaker", "Stops running cycles after repeated failures")
	rateLimitID      = pipz.NewIdentity("formz:rate-limit", "Limits the cycle rate")
)

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline[C any](terminal pipz.Chainable[*Cycle[C]], opts []PipelineOption[C]) pipz.Chainable[*Cycle[C]] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// WithTimeout bounds the duration of a single cycle. Logic callbacks that
// ignore the context are not interrupted, but the cycle reports an error.
func WithTimeout[C any](d time.Duration) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		return pipz.NewTimeout(timeoutID, p, d)
	}
}

// WithRetry reruns a failed cycle up to maxAttempts times. Logic runs again
// on every attempt.
func WithRetry[C any](maxAttempts int) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		return pipz.NewRetry(retryID, p, maxAttempts)
	}
}

// WithBackoff reruns a failed cycle with exponentially increasing delays.
func WithBackoff[C any](maxAttempts int, baseDelay time.Duration) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		return pipz.NewBackoff(backoffID, p, maxAttempts, baseDelay)
	}
}

// WithFallback tries each fallback in order when the cycle fails.
func WithFallback[C any](fallbacks ...pipz.Chainable[*Cycle[C]]) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		all := make([]pipz.Chainable[*Cycle[C]], 0, len(fallbacks)+1)
		all = append(all, p)
		all = append(all, fallbacks...)
		return pipz.NewFallback(fallbackID, all...)
	}
}

// WithCircuitBreaker fails cycles immediately after failures consecutive
// errors, until recovery has elapsed.
func WithCircuitBreaker[C any](failures int, recovery time.Duration) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		return pipz.NewCircuitBreaker(circuitBreakerID, p, failures, recovery)
	}
}

// WithRateLimit bounds how often cycles run. Cycles over the limit wait.
func WithRateLimit[C any](rate float64, burst int) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		return UseRateLimit(rate, burst, p)
	}
}

// WithErrorHandler adds error observation to the pipeline.
// Errors are passed to the handler for logging or metrics, but the error
// still propagates.
func WithErrorHandler[C any](handler pipz.Chainable[*pipz.Error[*Cycle[C]]]) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		return pipz.NewHandle(errorHandlerID, p, handler)
	}
}

// WithMiddleware runs processors before the cycle. A processor can inspect
// or rewrite the cycle, or abort it by returning an error.
//
// Example:
//
//	engine := formz.NewEngine(group, defaults, logic,
//	    formz.WithMiddleware(
//	        formz.UseEffect[Settings](auditID, func(ctx context.Context, c *formz.Cycle[Settings]) error {
//	            log.Printf("cycle %s", c.Phase)
//	            return nil
//	        }),
//	    ),
//	)
func WithMiddleware[C any](processors ...pipz.Chainable[*Cycle[C]]) PipelineOption[C] {
	return func(p pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
		all := make([]pipz.Chainable[*Cycle[C]], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence(middlewareID, all...)
	}
}

// UseTransform creates a processor that rewrites the cycle. Cannot fail.
func UseTransform[C any](id pipz.Identity, fn func(context.Context, *Cycle[C]) *Cycle[C]) pipz.Chainable[*Cycle[C]] {
	return pipz.Transform(id, fn)
}

// UseApply creates a processor that can rewrite the cycle or fail.
func UseApply[C any](id pipz.Identity, fn func(context.Context, *Cycle[C]) (*Cycle[C], error)) pipz.Chainable[*Cycle[C]] {
	return pipz.Apply(id, fn)
}

// UseEffect creates a processor that observes the cycle without changing it.
func UseEffect[C any](id pipz.Identity, fn func(context.Context, *Cycle[C]) error) pipz.Chainable[*Cycle[C]] {
	return pipz.Effect(id, fn)
}

// UseMutate rewrites the cycle only when condition holds.
func UseMutate[C any](id pipz.Identity, transformer func(context.Context, *Cycle[C]) *Cycle[C], condition func(context.Context, *Cycle[C]) bool) pipz.Chainable[*Cycle[C]] {
	return pipz.Mutate(id, transformer, condition)
}

// UseEnrich creates a best-effort processor. Its failures are ignored and
// the cycle continues unchanged.
func UseEnrich[C any](id pipz.Identity, fn func(context.Context, *Cycle[C]) (*Cycle[C], error)) pipz.Chainable[*Cycle[C]] {
	return pipz.Enrich(id, fn)
}

// UseRetry wraps a single processor with retries.
func UseRetry[C any](maxAttempts int, processor pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
	return pipz.NewRetry(retryID, processor, maxAttempts)
}

// UseBackoff wraps a single processor with backoff retries.
func UseBackoff[C any](maxAttempts int, baseDelay time.Duration, processor pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
	return pipz.NewBackoff(backoffID, processor, maxAttempts, baseDelay)
}

// UseTimeout bounds a single processor.
func UseTimeout[C any](d time.Duration, processor pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
	return pipz.NewTimeout(timeoutID, processor, d)
}

// UseFallback runs primary, then each fallback in order until one succeeds.
func UseFallback[C any](primary pipz.Chainable[*Cycle[C]], fallbacks ...pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
	all := append([]pipz.Chainable[*Cycle[C]]{primary}, fallbacks...)
	return pipz.NewFallback(fallbackID, all...)
}

// UseFilter runs processor only for cycles matching condition. Other cycles
// pass through unchanged.
//
// Example:
//
//	formz.UseFilter[Settings](valueOnlyID,
//	    func(_ context.Context, c *formz.Cycle[Settings]) bool { return c.Phase == formz.PhaseValue },
//	    audit,
//	)
func UseFilter[C any](id pipz.Identity, condition func(context.Context, *Cycle[C]) bool, processor pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
	return pipz.NewFilter(id, condition, processor)
}

// UseRateLimit limits how often processor runs.
func UseRateLimit[C any](rate float64, burst int, processor pipz.Chainable[*Cycle[C]]) pipz.Chainable[*Cycle[C]] {
	return pipz.NewRateLimiter(rateLimitID, rate, burst, processor)
}
