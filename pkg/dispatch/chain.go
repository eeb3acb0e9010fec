package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
	"github.com/rhuss/gatekeeper/pkg/debug"
	"github.com/rhuss/gatekeeper/pkg/observability"
)

// ErrUnknownStrategy is returned when a chain label is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// errStrategyPanic is returned when a strategy panics.
var errStrategyPanic = errors.New("strategy panicked")

// Chain runs registered strategies in label order using three-outcome voting.
type Chain struct {
	// Registry resolves labels. A Chain never caches resolved strategies,
	// so registrations and Clear take effect on the next request.
	Registry *strategy.Registry

	// Labels are evaluated left to right.
	Labels []strategy.Label

	// DefaultDecision is used when every strategy abstains.
	// Use Yes for development or No for production.
	DefaultDecision auth.AuthDecision
}

// Ensure Chain can be nested wherever an Authenticator is expected.
var _ auth.Authenticator = (*Chain)(nil)

// With returns a copy of the chain that evaluates labels instead.
func (c *Chain) With(labels ...strategy.Label) *Chain {
	return &Chain{
		Registry:        c.Registry,
		Labels:          slices.Clone(labels),
		DefaultDecision: c.DefaultDecision,
	}
}

// Check reports every label that does not resolve in the registry.
func (c *Chain) Check() error {
	var errs []error
	for _, label := range c.Labels {
		if _, ok := c.Registry.Lookup(label); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStrategy, label))
		}
	}
	return errors.Join(errs...)
}

// Authenticate runs the chain. It stops on the first Yes or No. An
// unregistered label rejects the request.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	for _, label := range c.Labels {
		s, ok := c.Registry.Lookup(label)
		if !ok {
			slog.Error("strategy not registered", "strategy", label)
			return auth.AuthResult{
				Decision: auth.No,
				Err:      fmt.Errorf("%w: %q", ErrUnknownStrategy, label),
				Strategy: string(label),
			}
		}

		result, applied := run(ctx, label, s, r)
		if !applied {
			debug.Log("dispatch", "strategy not applicable", "strategy", label)
			continue
		}
		debug.Log("dispatch", "strategy voted", "strategy", label, "decision", result.Decision)
		if result.Decision != auth.Abstain {
			result.Strategy = string(label)
			return result
		}
	}

	debug.Log("dispatch", "all strategies abstained", "default", c.DefaultDecision)
	if c.DefaultDecision == auth.Yes {
		return auth.AuthResult{Decision: auth.Yes, Identity: auth.Anonymous()}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

// run calls Valid and then Authenticate, recording metrics and turning a
// panic in either into No. applied is false when Valid declined the request.
func run(ctx context.Context, label strategy.Label, s strategy.Strategy, r *http.Request) (result auth.AuthResult, applied bool) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("strategy panicked", "strategy", label, "panic", rec)
			observability.StrategyPanicsTotal.WithLabelValues(string(label)).Inc()
			result = auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: %v", errStrategyPanic, rec)}
			applied = true
		}
		if !applied {
			return
		}
		observability.StrategyDecisionsTotal.WithLabelValues(string(label), result.Decision.String()).Inc()
		observability.StrategyDuration.WithLabelValues(string(label)).Observe(time.Since(start).Seconds())
	}()

	if !s.Valid(r) {
		return auth.AuthResult{}, false
	}
	applied = true
	return s.Authenticate(ctx, r), true
}
