//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tbessonov/authcore/session"
)

func newIntegrationStore(t *testing.T) (*session.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "ac", time.Now)

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(tenantID, principalID, sessionID, tokenID string) *session.Session {
	now := time.Now()

	return &session.Session{
		TokenID:     tokenID,
		PrincipalID: principalID,
		TenantID:    tenantID,
		Role:        "member",
		SessionID:   sessionID,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
}
