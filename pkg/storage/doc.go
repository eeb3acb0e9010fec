// Package storage defines the API key store contract shared by the store
// implementations (memory, postgres), together with sentinel errors, key
// generation and tenant context helpers.
//
// Stores only ever see the SHA-256 hash of a key. The plaintext secret is
// returned once by GenerateKey and never persisted.
package storage
