// Package transport provides the HTTP middleware stack wrapped around
// gatekeeper handlers: request IDs, panic recovery and access logging.
package transport
