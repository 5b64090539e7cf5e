package middleware

import (
	"context"
	"net/http"
	"strings"

	authcore "github.com/tbessonov/authcore"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validated auth result injected by a
// guard, or false when the request did not pass through one.
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

// Guard verifies the bearer access token on every request and injects the
// validated result into the request context. Verification is stateless.
// A missing or malformed Authorization header yields 401; a header that
// parses but carries an unverifiable token yields 403.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal applies [Guard] and additionally resolves the principal
// through the provider. Requests for principals that no longer exist get
// 404; deactivated principals get 403.
func RequirePrincipal(engine *authcore.Engine, provider authcore.PrincipalProvider) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || provider == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := provider.GetByID(r.Context(), res.PrincipalID)
			if err != nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if !principal.Active {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}))
	}
}

// RequireRole rejects requests whose validated claims carry a different
// role. Must be applied after [Guard] or [RequirePrincipal].
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if res.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
