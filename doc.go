// Package authcore provides a refresh-token session engine with JWT access tokens,
// rotating JWT refresh tokens, Redis-backed session storage, reuse detection, and
// per-principal session caps.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (MetricsSnapshot, AuthResult, TokenPair, etc.). All internal coordination — token hashing,
// session encoding, rate limiting, audit dispatch — lives under internal/ and the
// sub-packages and is never re-exported here.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store internals, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports authcore (no import cycles).
//
// # Performance contract
//
// Validate is the hot path. It must not allocate beyond the returned AuthResult struct and
// must complete without Redis round-trips. Refresh, Login, and Logout are allowed a small
// constant number of Redis round-trips per call.
package authcore
