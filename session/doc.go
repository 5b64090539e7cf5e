// Package session provides Redis-backed refresh-session persistence and compact
// binary session encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format (schema version v1).
// The encoder is append-only: future versions add fields but never reinterpret
// old ones. The expiry timestamp is always the final 8 bytes of the blob so the
// rotation script can read it without a full parse.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT interpret JWT tokens or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store raw refresh tokens in [Session] fields; sessions are keyed by
//     token digest only.
package session
