package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefreshRotatesTokenPair(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	first, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	second, err := engine.Refresh(context.Background(), first.Refresh)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.Refresh == first.Refresh {
		t.Fatal("expected a new refresh token after rotation")
	}
	if second.Access == "" {
		t.Fatal("expected a new access token after rotation")
	}

	res, err := engine.Validate(context.Background(), second.Access)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if res.PrincipalID != "u1" || res.Role != "member" {
		t.Fatalf("unexpected auth result: %+v", res)
	}

	// Rotation keeps the session lineage: exactly one live session remains.
	sessions, err := engine.ListSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session after rotation, got %d", len(sessions))
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	first, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	other, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	second, err := engine.Refresh(context.Background(), first.Refresh)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// Presenting the consumed token is theft evidence: every session of
	// the subject is revoked, including the unrelated one.
	if _, err := engine.Refresh(context.Background(), first.Refresh); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	sessions, err := engine.ListSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected zero sessions after reuse, got %d", len(sessions))
	}

	if _, err := engine.Refresh(context.Background(), second.Refresh); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse for successor token, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), other.Refresh); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse for sibling session token, got %v", err)
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	if _, err := engine.Refresh(context.Background(), "not-a-jwt"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestRefreshRejectsAccessTokenAsRefresh(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	pair, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.Refresh(context.Background(), pair.Access); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for access token, got %v", err)
	}
}

func TestRefreshThrottledPerSession(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Security.MaxRefreshAttempts = 3
	cfg.Security.RefreshCooldownDuration = time.Minute

	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, pp, nil)
	defer done()

	pair, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	for i := 0; i < cfg.Security.MaxRefreshAttempts; i++ {
		pair, err = engine.Refresh(context.Background(), pair.Refresh)
		if err != nil {
			t.Fatalf("refresh %d failed: %v", i, err)
		}
	}

	if _, err := engine.Refresh(context.Background(), pair.Refresh); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("expected ErrRefreshRateLimited, got %v", err)
	}
}

func TestValidateExpiredAccessToken(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	pp := newTestProvider(t)
	cfg := engineTestConfig()
	engine, _, done := newTestEngine(t, cfg, pp, clock)
	defer done()

	pair, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := engine.Validate(context.Background(), pair.Access); err != nil {
		t.Fatalf("validate failed before expiry: %v", err)
	}

	current = current.Add(cfg.Token.AccessTTL + cfg.Token.Leeway + time.Second)

	if _, err := engine.Validate(context.Background(), pair.Access); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
}

func TestRefreshExpiredSessionIsReuseNotRotation(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	pp := newTestProvider(t)
	cfg := engineTestConfig()
	engine, _, done := newTestEngine(t, cfg, pp, clock)
	defer done()

	pair, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Past the refresh TTL the token no longer verifies at all.
	current = current.Add(cfg.Token.RefreshTTL + cfg.Token.Leeway + time.Second)

	if _, err := engine.Refresh(context.Background(), pair.Refresh); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for expired token, got %v", err)
	}
}
