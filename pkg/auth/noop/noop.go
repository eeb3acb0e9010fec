// Package noop provides a strategy that accepts every request as the
// anonymous identity. Used for development and as the last label of a
// chain that should never reject.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
)

// Label is the registry label conventionally used for this strategy.
const Label strategy.Label = "anonymous"

// Strategy always returns Yes with the anonymous identity.
type Strategy struct {
	strategy.Base
}

func (s *Strategy) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return s.Success(auth.Anonymous())
}
