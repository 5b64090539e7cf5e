package authcore

import "errors"

var (
	// ErrUnauthorized is an exported constant or variable used by the session engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation is an exported constant or variable used by the session engine.
	ErrValidation = errors.New("missing required input")
	// ErrInvalidCredentials is an exported constant or variable used by the session engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound is an exported constant or variable used by the session engine.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalInactive is an exported constant or variable used by the session engine.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrLoginRateLimited is an exported constant or variable used by the session engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is an exported constant or variable used by the session engine.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrPasswordPolicy is an exported constant or variable used by the session engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the session engine.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrSessionCreationFailed is an exported constant or variable used by the session engine.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is an exported constant or variable used by the session engine.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrSessionLimitExceeded is an exported constant or variable used by the session engine.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrSessionNotFound is an exported constant or variable used by the session engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenInvalid is an exported constant or variable used by the session engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenClockSkew is an exported constant or variable used by the session engine.
	ErrTokenClockSkew = errors.New("token clock skew exceeded")
	// ErrRefreshInvalid is an exported constant or variable used by the session engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is an exported constant or variable used by the session engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrEngineNotReady is an exported constant or variable used by the session engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable is an exported constant or variable used by the session engine.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
