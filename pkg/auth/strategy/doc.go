// Package strategy provides the registry of named authentication strategies.
//
// A strategy is any type that embeds Base and declares an Authenticate
// method. Strategies are added to a Registry under a Label, either as a
// pre-built value (Add, Register) or as an inline function wrapped in a
// Func (AddFunc), and resolved later with Lookup:
//
//	reg := strategy.New()
//	reg.AddFunc("header", func(ctx context.Context, r *http.Request) auth.AuthResult {
//		if r.Header.Get("X-User") == "" {
//			return auth.AuthResult{Decision: auth.Abstain}
//		}
//		return auth.AuthResult{Decision: auth.Yes, Identity: &auth.Identity{Subject: r.Header.Get("X-User")}}
//	})
//
//	s, ok := reg.Lookup("header")
//
// Add checks candidates at runtime and refuses values that lack
// Authenticate (MissingCapabilityError) or do not embed Base
// (ContractViolationError). Registering an existing label replaces the
// previous strategy. Clear empties the registry, which tests use for
// isolation.
package strategy
