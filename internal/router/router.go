// Package router implements the dispatcher (C7): the only component that
// mutates provider circuit and bulkhead state. It orchestrates admission,
// candidate selection, per-attempt execution with retry/backoff, and
// fallback across the policy engine's ranked chain.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrepeneur4lyf/llmrouter/internal/adapter"
	"github.com/entrepeneur4lyf/llmrouter/internal/breaker"
	"github.com/entrepeneur4lyf/llmrouter/internal/gateway"
	"github.com/entrepeneur4lyf/llmrouter/internal/policy"
	"github.com/entrepeneur4lyf/llmrouter/internal/ratelimit"
	"github.com/entrepeneur4lyf/llmrouter/internal/registry"
	"github.com/entrepeneur4lyf/llmrouter/internal/telemetry"
)

// ErrorKind enumerates the router-boundary error taxonomy.
type ErrorKind string

const (
	KindValidationError     ErrorKind = "ValidationError"
	KindGatewayDenied       ErrorKind = "GatewayDenied"
	KindUnauthorized        ErrorKind = "Unauthorized"
	KindRateLimited         ErrorKind = "RateLimited"
	KindNoProviderAvailable ErrorKind = "NoProviderAvailable"
	KindAllProvidersFailed  ErrorKind = "AllProvidersFailed"
	KindProviderTimeout     ErrorKind = "ProviderTimeout"
	KindDeadlineExceeded    ErrorKind = "DeadlineExceeded"
	KindCanceled            ErrorKind = "Canceled"
	KindInternalError       ErrorKind = "InternalError"
)

// httpishStatus maps an ErrorKind onto an HTTP-ish status code for callers
// that want to respond over HTTP without re-deriving the mapping.
func httpishStatus(k ErrorKind) int {
	switch k {
	case KindValidationError, KindGatewayDenied:
		return 400
	case KindUnauthorized:
		return 401
	case KindRateLimited:
		return 429
	case KindNoProviderAvailable, KindAllProvidersFailed:
		return 503
	case KindProviderTimeout, KindDeadlineExceeded:
		return 504
	case KindCanceled:
		return 0
	default:
		return 500
	}
}

// RouterError is the structured error every user-visible failure surfaces
// as: a type, a human detail, optional field errors, an optional retry
// hint, and a correlation id propagated from the request.
type RouterError struct {
	Kind          ErrorKind
	Detail        string
	Fields        []gateway.FieldError
	RetryAfter    time.Duration
	CorrelationID string
	Cause         error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router: %s: %s (correlation_id=%s)", e.Kind, e.Detail, e.CorrelationID)
}

func (e *RouterError) Unwrap() error { return e.Cause }

// HTTPStatus exposes the status mapping for this error's kind.
func (e *RouterError) HTTPStatus() int { return httpishStatus(e.Kind) }

// Identity carries the caller's rate-limit identity tuple.
type Identity struct {
	UserID    string
	ClientIP  string
	SessionID string
}

// Request is the full RoutingRequest a caller hands to Route.
type Request struct {
	Messages             []adapter.Message
	Model                string
	MaxTokens            int
	Temperature          *float64
	TopP                 *float64
	LatencyPriority      gateway.LatencyPriority
	Intent               gateway.Intent
	RequiredCapabilities []string
	CostBudgetUSD        *float64
	PolicyName           string
	Identity             Identity
	DeadlineBudget       time.Duration // 0 means use defaultGlobalMaxDeadline
	Idempotent           bool          // only idempotent requests are retried per-provider
}

// AttemptTrace records one consulted candidate for the decision trace
// returned alongside every RouteResult.
type AttemptTrace struct {
	ProviderID string
	Attempted  bool
	Reason     string
	LatencyMs  int64
	OK         bool
	ErrorKind  adapter.ErrorKind
}

// RouteResult is the Router's public return value.
type RouteResult struct {
	Response      *adapter.ChatResponse
	DecisionTrace []AttemptTrace
	Outcome       telemetry.Entry
	ProviderID    string
	CorrelationID string
}

const (
	defaultGlobalMaxDeadline = 20 * time.Second
	maxProviderRetries       = 2
	retryBaseDelay           = 200 * time.Millisecond
	retryJitter              = 200 * time.Millisecond
	retryCapDelay            = 2 * time.Second
)

// Router ties the registry, policy engine, rate limiter, and gateway
// together into the single admission→execution path.
type Router struct {
	Registry  *registry.Registry
	Policy    *policy.Engine
	Limiter   *ratelimit.Limiter
	Gateway   *gateway.Gateway
	Telemetry *telemetry.Exporter // optional; nil disables OTel export
}

func New(reg *registry.Registry, pol *policy.Engine, lim *ratelimit.Limiter, gw *gateway.Gateway) *Router {
	return &Router{Registry: reg, Policy: pol, Limiter: lim, Gateway: gw}
}

// Route performs admission, selection, execution, and fallback for a
// single request. It is the only public entry point a caller needs.
func (r *Router) Route(ctx context.Context, req Request) (RouteResult, error) {
	correlationID := uuid.New().String()

	gwOutcome, err := r.Gateway.Admit(gateway.Request{
		Messages:             req.Messages,
		Model:                req.Model,
		MaxTokens:            req.MaxTokens,
		Temperature:          req.Temperature,
		TopP:                 req.TopP,
		LatencyPriority:      req.LatencyPriority,
		Intent:               req.Intent,
		RequiredCapabilities: req.RequiredCapabilities,
		CostBudgetUSD:        req.CostBudgetUSD,
		UserID:               req.Identity.UserID,
		ClientIP:             req.Identity.ClientIP,
		SessionID:            req.Identity.SessionID,
	})
	if err != nil {
		return RouteResult{}, classifyGatewayError(err, correlationID)
	}

	decision := r.Limiter.Check(ratelimit.Identity{
		UserID:    req.Identity.UserID,
		ClientIP:  req.Identity.ClientIP,
		SessionID: req.Identity.SessionID,
	}, time.Now())
	if !decision.Allowed {
		return RouteResult{}, &RouterError{
			Kind:          KindRateLimited,
			Detail:        fmt.Sprintf("rate limit exceeded on %s window", decision.LimitType),
			RetryAfter:    decision.RetryAfter,
			CorrelationID: correlationID,
		}
	}

	start := time.Now()
	deadlineBudget := req.DeadlineBudget
	if deadlineBudget <= 0 || deadlineBudget > defaultGlobalMaxDeadline {
		deadlineBudget = defaultGlobalMaxDeadline
	}
	deadline := start.Add(deadlineBudget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	chain := r.Policy.Rank(policy.Request{
		RequiredCapabilities:  req.RequiredCapabilities,
		Model:                 req.Model,
		LatencyPriority:       string(req.LatencyPriority),
		CostBudgetUSD:         req.CostBudgetUSD,
		EstimatedPromptTokens: gwOutcome.EstimatedPromptTokens,
		MaxTokens:             req.MaxTokens,
		PolicyName:            req.PolicyName,
	}, r.Registry.HealthyProviders(ctx))

	if len(chain.Ordered) == 0 {
		return RouteResult{DecisionTrace: traceFromDropped(chain)}, &RouterError{
			Kind:          KindNoProviderAvailable,
			Detail:        "no provider survived filtering",
			CorrelationID: correlationID,
		}
	}

	return r.dispatch(ctx, req, chain, deadline, correlationID)
}

func (r *Router) dispatch(ctx context.Context, req Request, chain policy.Chain, deadline time.Time, correlationID string) (RouteResult, error) {
	trace := traceFromDropped(chain)
	var lastErr error

	for _, candidate := range chain.Ordered {
		rt := candidate.Runtime

		if ctx.Err() != nil {
			return RouteResult{DecisionTrace: trace}, deadlineOrCanceled(ctx, correlationID)
		}

		if err := rt.Breaker.BeforeCall(); err != nil {
			trace = append(trace, AttemptTrace{ProviderID: rt.Descriptor.ID, Attempted: false, Reason: err.Error()})
			lastErr = err
			continue
		}

		if err := rt.Bulkhead.TryAcquire(); err != nil {
			trace = append(trace, AttemptTrace{ProviderID: rt.Descriptor.ID, Attempted: false, Reason: err.Error()})
			lastErr = err
			continue
		}

		attemptTrace, outcome, resp, attemptErr := r.attemptWithRetries(ctx, req, rt, deadline)
		trace = append(trace, attemptTrace...)

		if attemptErr == nil {
			return RouteResult{
				Response:      resp,
				DecisionTrace: trace,
				Outcome:       outcome,
				ProviderID:    rt.Descriptor.ID,
				CorrelationID: correlationID,
			}, nil
		}
		lastErr = attemptErr

		// Only the parent ctx's own expiry aborts the whole chain. attemptErr
		// may itself wrap context.DeadlineExceeded from the shorter-lived
		// attemptCtx (a per-provider timeout), which must advance to the
		// next candidate instead of propagating up.
		if ctx.Err() != nil {
			return RouteResult{DecisionTrace: trace}, deadlineOrCanceled(ctx, correlationID)
		}
	}

	kind := KindAllProvidersFailed
	detail := "fallback chain exhausted"
	if lastErr != nil && adapter.Classify(lastErr) == adapter.ErrTimeout {
		kind = KindProviderTimeout
		detail = "deadline exceeded on last attempt"
	}
	return RouteResult{DecisionTrace: trace}, &RouterError{
		Kind:          kind,
		Detail:        detail,
		CorrelationID: correlationID,
		Cause:         lastErr,
	}
}

// attemptWithRetries runs one candidate to completion, including its
// per-provider retry budget. Bulkhead release happens on every exit path
// via defer, so acquires and releases always stay paired.
func (r *Router) attemptWithRetries(ctx context.Context, req Request, rt *registry.ProviderRuntime, deadline time.Time) ([]AttemptTrace, telemetry.Entry, *adapter.ChatResponse, error) {
	defer rt.Bulkhead.Release()

	var trace []AttemptTrace
	attempt := 0

	for {
		if ctx.Err() != nil {
			return trace, telemetry.Entry{}, nil, ctx.Err()
		}

		attemptTimeout := time.Until(deadline)
		if rt.Descriptor.DefaultTimeout > 0 && rt.Descriptor.DefaultTimeout < attemptTimeout {
			attemptTimeout = rt.Descriptor.DefaultTimeout
		}
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)

		start := time.Now()
		resp, err := rt.Adapter.Chat(attemptCtx, adapter.ChatRequest{
			Model:       req.Model,
			Messages:    req.Messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
		})
		latency := time.Since(start).Milliseconds()
		cancel()

		if err == nil {
			rt.Breaker.RecordSuccess()
			entry := telemetry.Entry{
				Timestamp: start, LatencyMs: latency, OK: true,
				TokensIn: resp.Usage.InputTokens, TokensOut: resp.Usage.OutputTokens,
				CostUSD: telemetry.EstimateCost(rt.Descriptor.CostInputPer1K, rt.Descriptor.CostOutputPer1K, resp.Usage.InputTokens, resp.Usage.OutputTokens),
			}
			rt.Metrics.RecordOutcome(entry)
			if r.Telemetry != nil {
				r.Telemetry.Export(ctx, rt.Descriptor.ID, entry)
			}
			trace = append(trace, AttemptTrace{ProviderID: rt.Descriptor.ID, Attempted: true, OK: true, LatencyMs: latency})
			return trace, entry, &resp, nil
		}

		if ctx.Err() != nil {
			entry := telemetry.Entry{Timestamp: start, LatencyMs: latency, OK: false, ErrorKind: "canceled"}
			rt.Metrics.RecordOutcome(entry)
			r.Telemetry.Export(ctx, rt.Descriptor.ID, entry)
			trace = append(trace, AttemptTrace{ProviderID: rt.Descriptor.ID, Attempted: true, OK: false, LatencyMs: latency, ErrorKind: adapter.ErrOther})
			return trace, entry, nil, ctx.Err()
		}

		kind := adapter.Classify(err)
		entry := telemetry.Entry{Timestamp: start, LatencyMs: latency, OK: false, ErrorKind: string(kind)}
		trace = append(trace, AttemptTrace{ProviderID: rt.Descriptor.ID, Attempted: true, OK: false, LatencyMs: latency, ErrorKind: kind})

		switch kind {
		case adapter.ErrAuth:
			rt.Breaker.RecordAuthFailure()
			rt.Metrics.RecordOutcome(entry)
			r.Telemetry.Export(ctx, rt.Descriptor.ID, entry)
			return trace, entry, nil, err

		case adapter.ErrTimeout, adapter.ErrServer5xx, adapter.ErrRateLimit:
			rt.Breaker.RecordFailure()
			rt.Metrics.RecordOutcome(entry)
			r.Telemetry.Export(ctx, rt.Descriptor.ID, entry)
			if req.Idempotent && attempt < maxProviderRetries && retryFits(deadline) {
				time.Sleep(breaker.Backoff(attempt, retryBaseDelay, retryJitter, retryCapDelay))
				attempt++
				continue
			}
			return trace, entry, nil, err

		default:
			rt.Breaker.RecordFailure()
			rt.Metrics.RecordOutcome(entry)
			r.Telemetry.Export(ctx, rt.Descriptor.ID, entry)
			return trace, entry, nil, err
		}
	}
}

// retryFits reports whether there is enough deadline budget left to risk
// another attempt-plus-backoff cycle.
func retryFits(deadline time.Time) bool {
	return time.Until(deadline) > retryBaseDelay+retryJitter
}

func traceFromDropped(chain policy.Chain) []AttemptTrace {
	trace := make([]AttemptTrace, 0, len(chain.Dropped))
	for _, d := range chain.Dropped {
		trace = append(trace, AttemptTrace{ProviderID: d.Runtime.Descriptor.ID, Attempted: false, Reason: string(d.Reason)})
	}
	return trace
}

func deadlineOrCanceled(ctx context.Context, correlationID string) *RouterError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &RouterError{Kind: KindCanceled, Detail: "caller canceled", CorrelationID: correlationID}
	}
	return &RouterError{Kind: KindDeadlineExceeded, Detail: "overall deadline exceeded", CorrelationID: correlationID}
}

func classifyGatewayError(err error, correlationID string) *RouterError {
	var verr *gateway.ValidationError
	if errors.As(err, &verr) {
		return &RouterError{Kind: KindValidationError, Detail: verr.Error(), Fields: verr.Fields, CorrelationID: correlationID, Cause: err}
	}
	var mte *gateway.MaxTokensExceededError
	if errors.As(err, &mte) {
		return &RouterError{Kind: KindValidationError, Detail: mte.Error(), CorrelationID: correlationID, Cause: err}
	}
	var gde *gateway.GatewayDeniedError
	if errors.As(err, &gde) {
		return &RouterError{Kind: KindGatewayDenied, Detail: gde.Error(), CorrelationID: correlationID, Cause: err}
	}
	return &RouterError{Kind: KindInternalError, Detail: err.Error(), CorrelationID: correlationID, Cause: err}
}

// Reload delegates to the registry's atomic config reload.
func (r *Router) Reload(ctx context.Context) (registry.LoadResult, error) {
	return r.Registry.Reload(ctx)
}

// Status returns the operator-facing snapshot for every configured
// provider.
func (r *Router) Status() []registry.ProviderRuntimeStatus {
	runtimes := r.Registry.List()
	out := make([]registry.ProviderRuntimeStatus, 0, len(runtimes))
	for _, rt := range runtimes {
		out = append(out, rt.Snapshot())
	}
	return out
}

// MetricsSnapshot is one provider's exported telemetry observations.
type MetricsSnapshot struct {
	ProviderID string
	Aggregates telemetry.Aggregates
}

// Metrics returns the current telemetry aggregates for every configured
// provider.
func (r *Router) Metrics() []MetricsSnapshot {
	runtimes := r.Registry.List()
	out := make([]MetricsSnapshot, 0, len(runtimes))
	for _, rt := range runtimes {
		if rt.Metrics == nil {
			continue
		}
		out = append(out, MetricsSnapshot{ProviderID: rt.Descriptor.ID, Aggregates: rt.Metrics.Aggregates()})
	}
	return out
}
