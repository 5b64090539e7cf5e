package authcore

import "context"

// PrincipalProvider is the interface that callers must implement to
// integrate authcore with their principal database. It covers credential
// lookup by identifier, lookup by ID for middleware principal loading, and
// credential hash updates for password changes.
type PrincipalProvider interface {
	GetByIdentifier(ctx context.Context, identifier string) (PrincipalRecord, error)
	GetByID(ctx context.Context, principalID string) (PrincipalRecord, error)
	UpdateCredentialHash(ctx context.Context, principalID string, newHash string) error
}

// PrincipalRecord is the account record returned by [PrincipalProvider].
// It carries the credential hash, tenant, role, and active flag.
type PrincipalRecord struct {
	PrincipalID    string
	Identifier     string
	TenantID       string
	CredentialHash string
	Role           string
	Active         bool
}

// TokenPair is returned by [Engine.Login] and [Engine.Refresh]. Access is a
// short-lived bearer token; Refresh is the rotating session token that must
// be presented exactly once.
type TokenPair struct {
	Access  string
	Refresh string
}

// AuthResult is returned by [Engine.Validate]. It contains the
// authenticated principal’s ID, tenant, role, and session lineage ID as
// decoded from the access token.
type AuthResult struct {
	PrincipalID string
	TenantID    string
	Role        string
	SessionID   string
}

// SessionInfo is a read-only view of one active session, returned by
// [Engine.ListSessions] for session-management UIs.
type SessionInfo struct {
	TokenID   string
	SessionID string
	TenantID  string
	IssuedAt  int64
	ExpiresAt int64
}
