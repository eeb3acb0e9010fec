// Package auth holds the vocabulary shared by every authentication strategy
// in gatekeeper.
//
// A strategy answers each request with a three-outcome vote: Yes (identity
// found), No (credentials invalid), or Abstain (can't handle). Strategies
// are registered by label in the strategy subpackage and resolved by the
// dispatcher, which decides what happens when every strategy abstains.
//
// The package also carries the identity context helpers and the per-tier
// rate limiter consulted after a successful authentication.
package auth
