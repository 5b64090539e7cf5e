// Package main runs a reference HTTP server around the authcore engine.
//
// Configuration comes from the environment (optionally a YAML file passed
// via --config). The server exposes the auth surface, a Prometheus metrics
// endpoint, and liveness/readiness probes:
//
//	POST /auth/login
//	GET  /auth/refresh
//	POST /auth/logout
//	POST /auth/logout-all   (guarded)
//	GET  /auth/sessions     (guarded)
//	GET  /protected         (guarded, sample route)
//	GET  /metrics
//	GET  /livez
//	GET  /healthz
//
// A demo principal is seeded when SEED_IDENTIFIER and SEED_PASSWORD are
// set; otherwise the in-memory provider starts empty and every login
// fails. Production deployments replace the provider with a
// database-backed implementation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"

	authcore "github.com/tbessonov/authcore"
	export "github.com/tbessonov/authcore/metrics/export/prometheus"
	"github.com/tbessonov/authcore/middleware"
	"github.com/tbessonov/authcore/password"
	"github.com/tbessonov/authcore/session"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type serverConfig struct {
	Env  string `yaml:"env" env:"ENV" env-default:"local"`
	HTTP struct {
		Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
		Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	} `yaml:"http"`
	Redis struct {
		Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	} `yaml:"redis"`
	Token struct {
		AccessSecret  string        `yaml:"access_secret" env:"ACCESS_SECRET" env-required:"true"`
		RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_SECRET" env-required:"true"`
		AccessTTL     time.Duration `yaml:"access_ttl" env:"ACCESS_TTL" env-default:"5m"`
		RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL" env-default:"168h"`
		Issuer        string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"authcore"`
		Audience      string        `yaml:"audience" env:"TOKEN_AUDIENCE" env-default:"authcore"`
	} `yaml:"token"`
	Session struct {
		MaxPerPrincipal int  `yaml:"max_per_principal" env:"MAX_SESSIONS_PER_PRINCIPAL" env-default:"0"`
		EvictOldest     bool `yaml:"evict_oldest" env:"EVICT_OLDEST_AT_CAP" env-default:"true"`
	} `yaml:"session"`
	Audit struct {
		Enabled bool `yaml:"enabled" env:"AUDIT_ENABLED" env-default:"true"`
	} `yaml:"audit"`
	Seed struct {
		Identifier string `yaml:"identifier" env:"SEED_IDENTIFIER" env-default:""`
		Password   string `yaml:"password" env:"SEED_PASSWORD" env-default:""`
	} `yaml:"seed"`
}

func loadConfig() (*serverConfig, error) {
	var cfg serverConfig

	path := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		path = os.Args[2]
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting authcore-server", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Redis: external when configured, embedded miniredis for local runs.
	addr := cfg.Redis.Addr
	var mr *miniredis.Miniredis
	if addr == "" {
		mr, err = miniredis.Run()
		if err != nil {
			log.Error("miniredis_start_failed", "err", err.Error())
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		log.Info("using embedded redis", "addr", addr)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = rdb.Close() }()

	coreCfg := authcore.DefaultConfig()
	coreCfg.Token.AccessSecret = []byte(cfg.Token.AccessSecret)
	coreCfg.Token.RefreshSecret = []byte(cfg.Token.RefreshSecret)
	coreCfg.Token.AccessTTL = cfg.Token.AccessTTL
	coreCfg.Token.RefreshTTL = cfg.Token.RefreshTTL
	coreCfg.Token.Issuer = cfg.Token.Issuer
	coreCfg.Token.Audience = cfg.Token.Audience
	coreCfg.Session.MaxSessionsPerPrincipal = cfg.Session.MaxPerPrincipal
	coreCfg.Session.EvictOldestAtCap = cfg.Session.EvictOldest
	coreCfg.Audit.Enabled = cfg.Audit.Enabled
	coreCfg.Metrics.Enabled = true
	coreCfg.Metrics.EnableLatencyHistograms = true
	coreCfg.Security.ProductionMode = cfg.Env == envProd
	if cfg.Env == envLocal {
		coreCfg.Security.RequireSecureCookies = false
		coreCfg.Security.SameSitePolicy = http.SameSiteLaxMode
	}

	provider := newMemoryProvider()
	if cfg.Seed.Identifier != "" && cfg.Seed.Password != "" {
		if err := seedPrincipal(provider, coreCfg, cfg.Seed.Identifier, cfg.Seed.Password); err != nil {
			log.Error("seed_failed", "err", err.Error())
			os.Exit(1)
		}
		log.Info("seeded demo principal", "identifier", cfg.Seed.Identifier)
	}

	builder := authcore.New().
		WithConfig(coreCfg).
		WithRedis(rdb).
		WithPrincipalProvider(provider)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		log.Error("engine_build_failed", "err", err.Error())
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           routes(engine, provider, &coreCfg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_serve_failed", "err", err.Error())
			rootCancel()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http_shutdown_failed", "err", err.Error())
	}
}

func routes(engine *authcore.Engine, provider *memoryProvider, cfg *authcore.Config, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		pair, err := engine.Login(requestContext(r), body.Username, body.Password)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		http.SetCookie(w, cfg.RefreshCookie(pair.Refresh))
		writeJSON(w, http.StatusOK, map[string]string{"access_token": pair.Access})
	})

	mux.HandleFunc("GET /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cfg.Security.CookieName)
		if err != nil || cookie.Value == "" {
			http.Error(w, "missing refresh token", http.StatusUnauthorized)
			return
		}

		pair, err := engine.Refresh(requestContext(r), cookie.Value)
		if err != nil {
			http.SetCookie(w, cfg.ClearRefreshCookie())
			writeAuthError(w, err)
			return
		}

		http.SetCookie(w, cfg.RefreshCookie(pair.Refresh))
		writeJSON(w, http.StatusOK, map[string]string{"access_token": pair.Access})
	})

	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cfg.Security.CookieName)
		if err == nil && cookie.Value != "" {
			if err := engine.Logout(requestContext(r), cookie.Value); err != nil {
				log.Error("logout_failed", "err", err.Error())
				http.Error(w, "logout failed", http.StatusInternalServerError)
				return
			}
		}
		http.SetCookie(w, cfg.ClearRefreshCookie())
		w.WriteHeader(http.StatusNoContent)
	})

	guard := middleware.RequirePrincipal(engine, provider)

	mux.Handle("POST /auth/logout-all", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, _ := middleware.AuthResultFromContext(r.Context())
		if err := engine.LogoutAll(requestContext(r), res.PrincipalID); err != nil {
			log.Error("logout_all_failed", "err", err.Error())
			http.Error(w, "logout failed", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, cfg.ClearRefreshCookie())
		w.WriteHeader(http.StatusNoContent)
	})))

	mux.Handle("GET /auth/sessions", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, _ := middleware.AuthResultFromContext(r.Context())
		sessions, err := engine.ListSessions(requestContext(r), res.PrincipalID)
		if err != nil {
			log.Error("list_sessions_failed", "err", err.Error())
			http.Error(w, "listing failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})))

	mux.Handle("GET /protected", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, _ := middleware.AuthResultFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{
			"principal_id": res.PrincipalID,
			"role":         res.Role,
		})
	})))

	mux.Handle("GET /metrics", export.NewPrometheusExporter(engine).Handler())

	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrValidation):
		http.Error(w, "missing credentials", http.StatusBadRequest)
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrRefreshRateLimited):
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	case errors.Is(err, authcore.ErrSessionLimitExceeded):
		http.Error(w, "session limit exceeded", http.StatusConflict)
	case errors.Is(err, authcore.ErrRefreshReuse),
		errors.Is(err, authcore.ErrRefreshInvalid),
		errors.Is(err, authcore.ErrPrincipalInactive):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, authcore.ErrStoreUnavailable):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = authcore.WithClientIP(ctx, host)
	ctx = authcore.WithUserAgent(ctx, r.UserAgent())

	return ctx
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func seedPrincipal(provider *memoryProvider, cfg authcore.Config, identifier, credential string) error {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(credential)
	if err != nil {
		return err
	}

	provider.Put(authcore.PrincipalRecord{
		PrincipalID:    "seed-1",
		Identifier:     identifier,
		TenantID:       "0",
		CredentialHash: hash,
		Role:           "admin",
		Active:         true,
	})
	return nil
}

// memoryProvider is an in-memory PrincipalProvider for the reference server.
type memoryProvider struct {
	mu      sync.RWMutex
	byID    map[string]authcore.PrincipalRecord
	byIdent map[string]string
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		byID:    make(map[string]authcore.PrincipalRecord),
		byIdent: make(map[string]string),
	}
}

func (p *memoryProvider) Put(rec authcore.PrincipalRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[rec.PrincipalID] = rec
	p.byIdent[rec.Identifier] = rec.PrincipalID
}

func (p *memoryProvider) GetByIdentifier(_ context.Context, identifier string) (authcore.PrincipalRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.byIdent[identifier]
	if !ok {
		return authcore.PrincipalRecord{}, errors.New("principal not found")
	}
	rec, ok := p.byID[id]
	if !ok {
		return authcore.PrincipalRecord{}, errors.New("principal not found")
	}
	return rec, nil
}

func (p *memoryProvider) GetByID(_ context.Context, principalID string) (authcore.PrincipalRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.byID[principalID]
	if !ok {
		return authcore.PrincipalRecord{}, errors.New("principal not found")
	}
	return rec, nil
}

func (p *memoryProvider) UpdateCredentialHash(_ context.Context, principalID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.byID[principalID]
	if !ok {
		return errors.New("principal not found")
	}
	rec.CredentialHash = newHash
	p.byID[principalID] = rec
	return nil
}
