package jwt

import (
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func testManagerConfig() Config {
	return Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		AccessSecret:  []byte("access-secret-for-tests-0123"),
		RefreshSecret: []byte("refresh-secret-for-tests-0123"),
		Issuer:        "authcore",
		Audience:      "api",
		Leeway:        30 * time.Second,
		RequireIAT:    true,
	}
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := testManagerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsSharedSecret(t *testing.T) {
	cfg := testManagerConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected shared access/refresh secret to be rejected")
	}
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	access, err := m.IssueAccess("u1", "t1", "s1", "underwriter")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.TID != "t1" || claims.SID != "s1" || claims.Role != "underwriter" {
		t.Fatalf("unexpected access claims: %+v", claims)
	}

	refresh, err := m.IssueRefresh("u1", "t1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	rc, err := m.ParseRefresh(refresh)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if rc.UID != "u1" || rc.TID != "t1" || rc.SID != "s1" {
		t.Fatalf("unexpected refresh claims: %+v", rc)
	}
	if rc.ID == "" {
		t.Fatal("expected refresh token to carry a jti")
	}
}

func TestIssuedTokensAreUnique(t *testing.T) {
	m := newTestManager(t, nil)

	first, err := m.IssueRefresh("u1", "t1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	second, err := m.IssueRefresh("u1", "t1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if first == second {
		t.Fatal("expected identical issuance inputs to still produce distinct tokens")
	}
}

func TestParseRejectsCrossKindTokens(t *testing.T) {
	m := newTestManager(t, nil)

	access, err := m.IssueAccess("u1", "t1", "s1", "")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := m.ParseRefresh(access); err == nil {
		t.Fatal("expected access token to fail refresh verification")
	}

	refresh, err := m.IssueRefresh("u1", "t1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); err == nil {
		t.Fatal("expected refresh token to fail access verification")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, nil)

	claims := Claims{UID: "u1", SID: "s1", Knd: string(KindAccess), RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims)
	token, err := tok.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	m := newTestManager(t, nil)

	claims := Claims{UID: "u1", SID: "s1", Knd: string(KindAccess), RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("some-other-secret-entirely-00"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected token signed with foreign secret to be rejected")
	}
}

func TestParseIssuerAndAudience(t *testing.T) {
	m := newTestManager(t, nil)
	secret := testManagerConfig().AccessSecret

	wrongIssuer := Claims{UID: "u1", SID: "s1", Knd: string(KindAccess), RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badIssuerTok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongIssuer)
	badIssuer, _ := badIssuerTok.SignedString(secret)
	if _, err := m.ParseAccess(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := Claims{UID: "u1", SID: "s1", Knd: string(KindAccess), RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badAudienceTok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongAudience)
	badAudience, _ := badAudienceTok.SignedString(secret)
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestParseExpiryWithInjectedClock(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, func(cfg *Config) {
		cfg.Leeway = 0
		cfg.Now = func() time.Time { return current }
	})

	access, err := m.IssueAccess("u1", "t1", "s1", "")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected fresh token to parse: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := m.ParseAccess(access); err == nil {
		t.Fatal("expected token past AccessTTL to fail")
	}

	refresh, err := m.IssueRefresh("u1", "t1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	current = current.Add(2 * time.Hour)
	if _, err := m.ParseRefresh(refresh); err == nil {
		t.Fatal("expected token past RefreshTTL to fail")
	}
}

func TestParseRejectsFarFutureIAT(t *testing.T) {
	m := newTestManager(t, func(cfg *Config) {
		cfg.MaxFutureIAT = time.Minute
		cfg.Leeway = 2 * time.Minute
	})
	secret := testManagerConfig().AccessSecret

	future := Claims{UID: "u1", SID: "s1", Knd: string(KindAccess), RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(90 * time.Second)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, future)
	token, _ := tok.SignedString(secret)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected far-future iat to be rejected")
	}
}
