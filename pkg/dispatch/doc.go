// Package dispatch resolves strategy labels through a strategy.Registry
// and runs them against incoming requests.
//
// A Chain holds an ordered list of labels. For each request it looks up
// every label, skips strategies whose Valid hook rejects the request, and
// stops at the first strategy that does not abstain. When every strategy
// abstains the chain's DefaultDecision applies. Middleware wires a Chain
// into an HTTP handler stack.
package dispatch
