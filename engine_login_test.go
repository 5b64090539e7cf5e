package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tbessonov/authcore/password"
)

type mockPrincipalProvider struct {
	principals   map[string]PrincipalRecord
	byIdentifier map[string]string
	updateErr    error
	mu           sync.Mutex

	getByIdentifierCalls int
	getByIDCalls         int
	updateHashCalls      int
}

func (m *mockPrincipalProvider) GetByIdentifier(ctx context.Context, identifier string) (PrincipalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIdentifierCalls++

	principalID, ok := m.byIdentifier[identifier]
	if !ok {
		return PrincipalRecord{}, errors.New("not found")
	}

	principal, ok := m.principals[principalID]
	if !ok {
		return PrincipalRecord{}, errors.New("not found")
	}

	return principal, nil
}

func (m *mockPrincipalProvider) GetByID(ctx context.Context, principalID string) (PrincipalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++

	principal, ok := m.principals[principalID]
	if !ok {
		return PrincipalRecord{}, errors.New("not found")
	}

	return principal, nil
}

func (m *mockPrincipalProvider) UpdateCredentialHash(ctx context.Context, principalID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateHashCalls++

	if m.updateErr != nil {
		return m.updateErr
	}

	principal, ok := m.principals[principalID]
	if !ok {
		return errors.New("not found")
	}

	principal.CredentialHash = newHash
	m.principals[principalID] = principal
	return nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestHasher(t *testing.T) *password.Argon2 {
	t.Helper()

	h, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret-0123456789abc")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-0123456789ab")
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnableIPThrottle = true
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = time.Minute
	return cfg
}

func newTestProvider(t *testing.T) *mockPrincipalProvider {
	t.Helper()

	hasher := newTestHasher(t)
	hash, err := hasher.Hash("correct-password-123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	return &mockPrincipalProvider{
		principals: map[string]PrincipalRecord{
			"u1": {
				PrincipalID:    "u1",
				Identifier:     "alice",
				TenantID:       "0",
				CredentialHash: hash,
				Role:           "member",
				Active:         true,
			},
			"u2": {
				PrincipalID:    "u2",
				Identifier:     "bob",
				TenantID:       "0",
				CredentialHash: hash,
				Role:           "member",
				Active:         true,
			},
		},
		byIdentifier: map[string]string{
			"alice": "u1",
			"bob":   "u2",
		},
	}
}

func newTestEngine(t *testing.T, cfg Config, pp PrincipalProvider, clock func() time.Time) (*Engine, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalProvider(pp).
		WithClock(clock)

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, rdb, func() {
		engine.Close()
		mr.Close()
	}
}

func TestLoginIssuesTokenPairAndSession(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	pair, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if pair.Access == pair.Refresh {
		t.Fatal("access and refresh tokens must differ")
	}

	sessions, err := engine.ListSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}

	res, err := engine.Validate(context.Background(), pair.Access)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if res.PrincipalID != "u1" || res.Role != "member" || res.TenantID != "0" {
		t.Fatalf("unexpected auth result: %+v", res)
	}
	if res.SessionID != sessions[0].SessionID {
		t.Fatal("access token session must match the stored session")
	}
}

func TestLoginWrongCredentialRejected(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	if _, err := engine.Login(context.Background(), "alice", "wrong-password-000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "nobody", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown identifier, got %v", err)
	}
}

func TestLoginEmptyInputIsValidationError(t *testing.T) {
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	if _, err := engine.Login(context.Background(), "alice", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty credential, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "", "correct-password-123"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty identifier, got %v", err)
	}

	// Malformed input must not read as a credential failure.
	if _, err := engine.Login(context.Background(), "alice", ""); errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("empty input must map to ErrValidation, not ErrInvalidCredentials")
	}
	if pp.getByIdentifierCalls != 0 {
		t.Fatal("empty input must be rejected before the provider lookup")
	}
}

func TestLoginInactivePrincipalRejected(t *testing.T) {
	pp := newTestProvider(t)
	rec := pp.principals["u1"]
	rec.Active = false
	pp.principals["u1"] = rec

	engine, _, done := newTestEngine(t, engineTestConfig(), pp, nil)
	defer done()

	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); !errors.Is(err, ErrPrincipalInactive) {
		t.Fatalf("expected ErrPrincipalInactive, got %v", err)
	}
}

func TestLoginRateLimitedAfterRepeatedFailures(t *testing.T) {
	cfg := engineTestConfig()
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, pp, nil)
	defer done()

	ctx := WithClientIP(context.Background(), "10.0.0.1")
	for i := 0; i < cfg.Security.MaxLoginAttempts+1; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong-password-000"); !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrLoginRateLimited) {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}

	if _, err := engine.Login(ctx, "alice", "correct-password-123"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
}

func TestLoginResetsLimiterOnSuccess(t *testing.T) {
	cfg := engineTestConfig()
	pp := newTestProvider(t)
	engine, _, done := newTestEngine(t, cfg, pp, nil)
	defer done()

	ctx := WithClientIP(context.Background(), "10.0.0.2")
	for i := 0; i < cfg.Security.MaxLoginAttempts-1; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong-password-000"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}

	if _, err := engine.Login(ctx, "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Counter was cleared: the full budget is available again.
	for i := 0; i < cfg.Security.MaxLoginAttempts-1; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong-password-000"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("post-reset attempt %d: unexpected error %v", i, err)
		}
	}
}

func TestLoginUpgradesLegacyCredentialHash(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Password.Memory = 16384

	weakHasher, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	weakHash, err := weakHasher.Hash("correct-password-123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	pp := &mockPrincipalProvider{
		principals: map[string]PrincipalRecord{
			"u1": {
				PrincipalID:    "u1",
				Identifier:     "alice",
				TenantID:       "0",
				CredentialHash: weakHash,
				Role:           "member",
				Active:         true,
			},
		},
		byIdentifier: map[string]string{"alice": "u1"},
	}

	engine, _, done := newTestEngine(t, cfg, pp, nil)
	defer done()

	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pp.updateHashCalls != 1 {
		t.Fatalf("expected one credential hash upgrade, got %d", pp.updateHashCalls)
	}
	if pp.principals["u1"].CredentialHash == weakHash {
		t.Fatal("expected stored hash to be replaced")
	}
}
