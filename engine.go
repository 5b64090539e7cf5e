package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbessonov/authcore/internal"
	"github.com/tbessonov/authcore/internal/rate"
	"github.com/tbessonov/authcore/jwt"
	"github.com/tbessonov/authcore/password"
	"github.com/tbessonov/authcore/session"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	principals   PrincipalProvider
	now          func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Ping verifies that the session store backend is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	return e.sessionStore.Ping(ctx)
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, identifier, credential string) (*TokenPair, error) {
	ip := clientIPFromContext(ctx)
	tenantID := tenantIDFromContext(ctx)
	if e.passwordHash == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", tenantID, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
				}
			})
			e.emitRateLimit(ctx, "login", tenantID, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
				}
			})
			return nil, ErrLoginRateLimited
		}
	}

	if identifier == "" || credential == "" {
		if err := e.recordFailedLogin(ctx, identifier, ip, tenantID); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", tenantID, "", ErrValidation, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "empty_input",
			}
		})
		return nil, ErrValidation
	}

	principal, err := e.principals.GetByIdentifier(ctx, identifier)
	if err != nil {
		if err := e.recordFailedLogin(ctx, identifier, ip, tenantID); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", tenantID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "principal_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if principal.TenantID != "" {
		tenantID = principal.TenantID
	}

	ok, err := e.passwordHash.Verify(credential, principal.CredentialHash)
	if err != nil || !ok {
		if err := e.recordFailedLogin(ctx, identifier, ip, tenantID); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, tenantID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "credential_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if !principal.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, tenantID, "", ErrPrincipalInactive, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "principal_inactive",
			}
		})
		return nil, ErrPrincipalInactive
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(principal.CredentialHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(credential); err == nil {
				// Rehash update is best-effort and must not block successful login.
				if err := e.principals.UpdateCredentialHash(ctx, principal.PrincipalID, upgradedHash); err != nil {
					log.Print("authcore: credential hash upgrade update failed")
				}
			} else {
				log.Print("authcore: credential hash upgrade generation failed")
			}
		}
	}
	credential = ""

	if err := e.enforceSessionCap(ctx, tenantID, principal.PrincipalID); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, tenantID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "session_cap",
			}
		})
		return nil, err
	}

	sessionID := internal.NewSessionID()

	refresh, err := e.jwtManager.IssueRefresh(principal.PrincipalID, tenantID, sessionID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "issue_refresh_failed",
			}
		})
		return nil, err
	}

	now := e.now()
	sess := &session.Session{
		TokenID:       internal.HashToken(refresh),
		PrincipalID:   principal.PrincipalID,
		TenantID:      tenantID,
		Role:          principal.Role,
		SessionID:     sessionID,
		IPHash:        internal.HashBindingValue(ip),
		UserAgentHash: internal.HashBindingValue(userAgentFromContext(ctx)),
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(e.config.Token.RefreshTTL).Unix(),
	}

	if err := e.sessionStore.Append(ctx, sess, e.config.Token.RefreshTTL); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, tenantID, sessionID, ErrSessionCreationFailed, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "session_append_failed",
			}
		})
		return nil, errors.Join(ErrSessionCreationFailed, err)
	}

	access, err := e.jwtManager.IssueAccess(principal.PrincipalID, tenantID, sessionID, principal.Role)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, principal.PrincipalID, tenantID, sessionID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "issue_access_failed",
			}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Limiter reset is best-effort and must not block successful login.
		if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
			log.Print("authcore: login limiter reset failed")
		}
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, principal.PrincipalID, tenantID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (e *Engine) recordFailedLogin(ctx context.Context, identifier, ip, tenantID string) error {
	if e.rateLimiter == nil {
		return nil
	}
	if err := e.rateLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", tenantID, "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		e.emitRateLimit(ctx, "login", tenantID, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return ErrLoginRateLimited
	}
	return nil
}

// enforceSessionCap purges the principal's expired sessions and then
// applies the per-principal ceiling before a new session is appended. The
// purge runs even with an unlimited cap so every login sweeps stale index
// entries instead of waiting for the index TTL.
func (e *Engine) enforceSessionCap(ctx context.Context, tenantID, principalID string) error {
	if _, err := e.sessionStore.PurgeExpired(ctx, tenantID, principalID); err != nil {
		return err
	}

	maxSessions := e.config.Session.MaxSessionsPerPrincipal
	if maxSessions <= 0 {
		return nil
	}

	count, err := e.sessionStore.ActiveSessionCount(ctx, tenantID, principalID)
	if err != nil {
		return err
	}
	if count < maxSessions {
		return nil
	}

	if !e.config.Session.EvictOldestAtCap {
		e.metricInc(MetricSessionLimitRejected)
		e.emitAudit(ctx, auditEventSessionLimitRejected, false, principalID, tenantID, "", ErrSessionLimitExceeded, nil)
		return ErrSessionLimitExceeded
	}

	// Evict until the new session fits; normally a single pass.
	for count >= maxSessions {
		oldest, err := e.sessionStore.OldestTokenID(ctx, tenantID, principalID)
		if err != nil {
			return err
		}
		if oldest == "" {
			return nil
		}
		if err := e.sessionStore.Remove(ctx, tenantID, principalID, oldest); err != nil {
			return err
		}
		e.metricInc(MetricSessionEvicted)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventSessionEvicted, true, principalID, tenantID, "", nil, func() map[string]string {
			return map[string]string{
				"token_id": oldest,
			}
		})
		count--
	}

	return nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh rotates a refresh token: the presented token's session is removed
// and replaced by a successor in one atomic store call. Presenting a validly
// signed token whose session is gone is treated as proof of theft and
// revokes every session of the token's subject.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", tenantIDFromContext(ctx), "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "verify_failed",
			}
		})
		return nil, ErrRefreshInvalid
	}
	tenantID := claims.TID

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, claims.SID); err != nil {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, claims.UID, tenantID, claims.SID, ErrRefreshRateLimited, nil)
			e.emitRateLimit(ctx, "refresh", tenantID, func() map[string]string {
				return map[string]string{
					"session_id": claims.SID,
				}
			})
			return nil, ErrRefreshRateLimited
		}
	}

	oldTokenID := internal.HashToken(refreshToken)
	sess, err := e.sessionStore.FindByToken(ctx, tenantID, oldTokenID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, e.handleRefreshReuse(ctx, claims)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, tenantID, claims.SID, err, func() map[string]string {
			return map[string]string{
				"reason": "store_lookup_failed",
			}
		})
		return nil, err
	}

	if sess.PrincipalID != claims.UID || sess.TenantID != normalizedTenant(tenantID) {
		_ = e.sessionStore.Remove(ctx, tenantID, sess.PrincipalID, oldTokenID)
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UID, tenantID, claims.SID, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "subject_mismatch",
			}
		})
		return nil, ErrRefreshInvalid
	}

	nextRefresh, err := e.jwtManager.IssueRefresh(sess.PrincipalID, sess.TenantID, sess.SessionID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, sess.PrincipalID, sess.TenantID, sess.SessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_refresh_failed",
			}
		})
		return nil, err
	}

	now := e.now()
	next := &session.Session{
		TokenID:       internal.HashToken(nextRefresh),
		PrincipalID:   sess.PrincipalID,
		TenantID:      sess.TenantID,
		Role:          sess.Role,
		SessionID:     sess.SessionID,
		IPHash:        sess.IPHash,
		UserAgentHash: sess.UserAgentHash,
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(e.config.Token.RefreshTTL).Unix(),
	}

	if err := e.sessionStore.Replace(ctx, oldTokenID, next, e.config.Token.RefreshTTL); err != nil {
		if errors.Is(err, redis.Nil) {
			// Lost the rotation race: a concurrent caller already consumed
			// the presented token. That concurrent presentation is
			// indistinguishable from theft.
			return nil, e.handleRefreshReuse(ctx, claims)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, sess.PrincipalID, sess.TenantID, sess.SessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "rotate_failed",
			}
		})
		return nil, err
	}

	access, err := e.jwtManager.IssueAccess(sess.PrincipalID, sess.TenantID, sess.SessionID, sess.Role)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, sess.PrincipalID, sess.TenantID, sess.SessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.PrincipalID, sess.TenantID, sess.SessionID, nil, nil)

	return &TokenPair{Access: access, Refresh: nextRefresh}, nil
}

// handleRefreshReuse revokes every session of the token's subject and
// reports the reuse. The presenting caller always receives ErrRefreshReuse,
// even when the wipe itself hits a store failure: the legitimate holder must
// never keep a working token after a reuse signal.
func (e *Engine) handleRefreshReuse(ctx context.Context, claims *jwt.Claims) error {
	e.metricInc(MetricRefreshReuseDetected)
	e.metricInc(MetricSessionInvalidated)

	wiped, err := e.sessionStore.WipeAll(ctx, claims.TID, claims.UID)
	if err != nil {
		log.Print("authcore: session wipe failed after refresh reuse")
	}

	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.UID, claims.TID, claims.SID, ErrRefreshReuse, func() map[string]string {
		return map[string]string{
			"sessions_revoked": strconv.Itoa(wiped),
		}
	})
	return ErrRefreshReuse
}

// Validate describes the validate operation and its observable behavior.
//
// Validate is the hot path: it verifies the access token signature and
// claims without any Redis round-trip.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &AuthResult{
		PrincipalID: claims.UID,
		TenantID:    normalizedTenant(claims.TID),
		Role:        claims.Role,
		SessionID:   claims.SID,
	}, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout removes the session of the presented refresh token. It is
// idempotent: a token that is malformed, expired, or already rotated out of
// the store leaves nothing to remove and reports success.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, true, "", tenantIDFromContext(ctx), "", nil, func() map[string]string {
			return map[string]string{
				"reason": "token_unverifiable",
			}
		})
		return nil
	}

	err = e.sessionStore.Remove(ctx, claims.TID, claims.UID, internal.HashToken(refreshToken))
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, claims.UID, claims.TID, claims.SID, err, nil)
	return err
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) error {
	return e.LogoutAllInTenant(ctx, tenantIDFromContext(ctx), principalID)
}

// LogoutAllInTenant describes the logoutallintenant operation and its observable behavior.
//
// LogoutAllInTenant may return an error when input validation, dependency calls, or security checks fail.
// LogoutAllInTenant does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAllInTenant(ctx context.Context, tenantID, principalID string) error {
	wiped, err := e.sessionStore.WipeAll(ctx, tenantID, principalID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		if wiped > 0 {
			e.metricInc(MetricSessionInvalidated)
		}
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, principalID, tenantID, "", err, func() map[string]string {
		return map[string]string{
			"sessions_revoked": strconv.Itoa(wiped),
		}
	})
	return err
}

// ListSessions returns a read-only view of the principal's live sessions
// within the context tenant, ordered by expiry.
func (e *Engine) ListSessions(ctx context.Context, principalID string) ([]SessionInfo, error) {
	tenantID := tenantIDFromContext(ctx)
	sessions, err := e.sessionStore.ListForPrincipal(ctx, tenantID, principalID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionInfo{
			TokenID:   sess.TokenID,
			SessionID: sess.SessionID,
			TenantID:  sess.TenantID,
			IssuedAt:  sess.IssuedAt,
			ExpiresAt: sess.ExpiresAt,
		})
	}
	return out, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// A successful change revokes every session of the principal: outstanding
// refresh tokens must not survive a credential rotation.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, principalID, oldCredential, newCredential string) error {
	if e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if principalID == "" || oldCredential == "" || newCredential == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, tenantIDFromContext(ctx), "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return ErrPasswordPolicy
	}

	principal, err := e.principals.GetByID(ctx, principalID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, tenantIDFromContext(ctx), "", ErrPrincipalNotFound, func() map[string]string {
			return map[string]string{
				"reason": "principal_not_found",
			}
		})
		return ErrPrincipalNotFound
	}
	if !principal.Active {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, principal.TenantID, "", ErrPrincipalInactive, func() map[string]string {
			return map[string]string{
				"reason": "principal_inactive",
			}
		})
		return ErrPrincipalInactive
	}

	oldOK, err := e.passwordHash.Verify(oldCredential, principal.CredentialHash)
	if err != nil || !oldOK {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, principalID, principal.TenantID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	sameCredential, err := e.passwordHash.Verify(newCredential, principal.CredentialHash)
	if err == nil && sameCredential {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, principalID, principal.TenantID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newCredential)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, principal.TenantID, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "hash_policy",
			}
		})
		return ErrPasswordPolicy
	}

	if err := e.principals.UpdateCredentialHash(ctx, principalID, newHash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, principal.TenantID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "update_hash_failed",
			}
		})
		return err
	}

	invalidateTenant := tenantIDFromContext(ctx)
	if principal.TenantID != "" {
		invalidateTenant = principal.TenantID
	}

	if err := e.LogoutAllInTenant(ctx, invalidateTenant, principalID); err != nil {
		log.Print("authcore: session invalidation failed after password change")
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, principalID, invalidateTenant, "", ErrSessionInvalidationFailed, func() map[string]string {
			return map[string]string{
				"reason": "session_invalidation_failed",
			}
		})
		return errors.Join(ErrSessionInvalidationFailed, err)
	}

	if e.rateLimiter != nil {
		identifier := principal.Identifier
		if identifier == "" {
			identifier = principalID
		}
		// Limiter reset is best-effort and must not block successful password change.
		if err := e.rateLimiter.ResetLogin(ctx, identifier, clientIPFromContext(ctx)); err != nil {
			log.Print("authcore: login limiter reset failed after password change")
		}
	}

	oldCredential = ""
	newCredential = ""
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, principalID, invalidateTenant, "", nil, nil)

	return nil
}

func normalizedTenant(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
