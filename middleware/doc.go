// Package middleware exposes HTTP middleware adapters built on top of
// authcore.Engine validation.
//
// # Guards
//
//   - [Guard] — stateless access-token verification, no Redis call.
//   - [RequirePrincipal] — [Guard] plus a provider lookup that rejects
//     deleted or deactivated principals.
//   - [RequireRole] — role check on the validated claims.
//
// Each guard reads the Authorization header, calls Engine.Validate, and injects
// the validated result into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself — all decisions are delegated to Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond what Engine.Validate and the
//     principal record expose.
package middleware
