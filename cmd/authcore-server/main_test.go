package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	authcore "github.com/tbessonov/authcore"
	"github.com/tbessonov/authcore/session"
)

func TestWriteAuthErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", authcore.ErrValidation, http.StatusBadRequest},
		{"bad credentials", authcore.ErrInvalidCredentials, http.StatusUnauthorized},
		{"inactive principal", authcore.ErrPrincipalInactive, http.StatusForbidden},
		{"invalid refresh", authcore.ErrRefreshInvalid, http.StatusForbidden},
		{"reused refresh", authcore.ErrRefreshReuse, http.StatusForbidden},
		{"login throttled", authcore.ErrLoginRateLimited, http.StatusTooManyRequests},
		{"refresh throttled", authcore.ErrRefreshRateLimited, http.StatusTooManyRequests},
		{"session cap", authcore.ErrSessionLimitExceeded, http.StatusConflict},
		{"redis down", fmt.Errorf("%w: connection refused", session.ErrRedisUnavailable), http.StatusServiceUnavailable},
		{"redis down during append", errors.Join(authcore.ErrSessionCreationFailed, session.ErrRedisUnavailable), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAuthError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestWriteAuthErrorBodyIsGeneric(t *testing.T) {
	detailed := fmt.Errorf("%w: dial tcp 10.0.0.4:6379", session.ErrRedisUnavailable)

	rec := httptest.NewRecorder()
	writeAuthError(rec, detailed)
	if got := rec.Body.String(); got != "service unavailable\n" {
		t.Fatalf("response body must not leak error detail, got %q", got)
	}
}
