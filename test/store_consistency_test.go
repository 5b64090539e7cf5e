//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStoreConsistencyRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	sess := makeSession("0", "u1", "sid-remove", "tok-remove")
	if err := store.Append(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := store.Remove(ctx, "0", "u1", "tok-remove"); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	if err := store.Remove(ctx, "0", "u1", "tok-remove"); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}

	count, err := store.ActiveSessionCount(ctx, "0", "u1")
	if err != nil {
		t.Fatalf("ActiveSessionCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active sessions, got %d", count)
	}
}

func TestStoreConsistencyReplaceMissingOldIsNil(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	next := makeSession("0", "u2", "sid-rotate", "tok-next")
	if err := store.Replace(ctx, "tok-never-stored", next, time.Hour); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for missing rotation target, got %v", err)
	}

	// The losing rotation must not leave the new token behind.
	if _, err := store.FindByToken(ctx, "0", "tok-next"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for unrotated token, got %v", err)
	}
}

func TestStoreConsistencyReplaceHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	old := makeSession("0", "u3", "sid-race", "tok-old")
	if err := store.Append(ctx, old, time.Hour); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	first := makeSession("0", "u3", "sid-race", "tok-first")
	if err := store.Replace(ctx, "tok-old", first, time.Hour); err != nil {
		t.Fatalf("first Replace failed: %v", err)
	}

	second := makeSession("0", "u3", "sid-race", "tok-second")
	if err := store.Replace(ctx, "tok-old", second, time.Hour); !errors.Is(err, redis.Nil) {
		t.Fatalf("second Replace on the same target must lose, got %v", err)
	}

	count, err := store.ActiveSessionCount(ctx, "0", "u3")
	if err != nil {
		t.Fatalf("ActiveSessionCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 surviving session, got %d", count)
	}
}
