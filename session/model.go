package session

// Session defines a public type used by authcore APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	// TokenID is the hex SHA-256 digest of the refresh token string. It is
	// the Redis key component and is never encoded into the stored blob.
	TokenID string

	PrincipalID string
	TenantID    string
	Role        string

	// SessionID is the lineage identifier. It stays stable across
	// rotations of the same login.
	SessionID string

	IPHash        [32]byte
	UserAgentHash [32]byte

	IssuedAt  int64
	ExpiresAt int64
}
