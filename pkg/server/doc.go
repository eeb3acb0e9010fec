// Package server wires configuration into a running gatekeeper: it fills
// a strategy registry with the builtin strategies, assembles the chain and
// exposes the HTTP routes behind the transport and auth middleware.
package server
