// Package internal contains helper utilities that are intentionally private to
// authcore, including refresh-token digesting and session lineage IDs.
//
// # Sub-packages
//
//   - rate — Redis-backed fixed-window rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
