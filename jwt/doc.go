// Package jwt manages issuance and verification of the access/refresh token
// pair using kind-specific HMAC secrets and strict validation semantics
// suitable for low-latency authentication paths.
package jwt
