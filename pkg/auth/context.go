package auth

import "context"

type (
	identityKey struct{}
	strategyKey struct{}
)

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// SetStrategy records the label of the strategy that authenticated the request.
func SetStrategy(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, strategyKey{}, label)
}

// StrategyFromContext returns the label recorded by SetStrategy, or empty string.
func StrategyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(strategyKey{}).(string); ok {
		return v
	}
	return ""
}
