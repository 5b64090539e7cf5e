package authcore

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authcore APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix             string
	MaxSessionsPerPrincipal int
	EvictOldestAtCap        bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by authcore APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode          bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
	CookieName              string
	CookiePath              string
	RequireSecureCookies    bool
	SameSitePolicy          http.SameSite
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Secrets are left empty
// and must be supplied by the caller before [Config.Validate] will pass.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:    5 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			Issuer:       "authcore",
			Audience:     "authcore",
			Leeway:       30 * time.Second,
			RequireIAT:   true,
			MaxFutureIAT: 2 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:             "ac",
			MaxSessionsPerPrincipal: 0,
			EvictOldestAtCap:        true,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: 1 * time.Minute,
			CookieName:              "refresh_token",
			CookiePath:              "/auth",
			RequireSecureCookies:    true,
			SameSitePolicy:          http.SameSiteStrictMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}
	if len(c.Token.AccessSecret) < 16 {
		return errors.New("Token AccessSecret must be at least 16 bytes")
	}
	if len(c.Token.RefreshSecret) < 16 {
		return errors.New("Token RefreshSecret must be at least 16 bytes")
	}
	if bytes.Equal(c.Token.AccessSecret, c.Token.RefreshSecret) {
		return errors.New("Token AccessSecret and RefreshSecret must differ")
	}
	if strings.TrimSpace(c.Token.Issuer) == "" {
		return errors.New("Token Issuer must not be empty")
	}
	if strings.TrimSpace(c.Token.Audience) == "" {
		return errors.New("Token Audience must not be empty")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}
	if c.Token.Leeway > 5*time.Minute {
		return errors.New("Token Leeway must be <= 5m")
	}
	if c.Token.MaxFutureIAT < 0 {
		return errors.New("Token MaxFutureIAT must be >= 0")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, ": ") {
		return errors.New("Session RedisPrefix must not contain ':' or spaces")
	}
	if c.Session.MaxSessionsPerPrincipal < 0 {
		return errors.New("Session MaxSessionsPerPrincipal must be >= 0")
	}

	// Password
	if c.Password.Memory < 8192 {
		return errors.New("Password Memory must be at least 8192 KB")
	}
	if c.Password.Time == 0 {
		return errors.New("Password Time must be > 0")
	}
	if c.Password.Parallelism == 0 {
		return errors.New("Password Parallelism must be > 0")
	}
	if c.Password.SaltLength < 8 {
		return errors.New("Password SaltLength must be at least 8")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be at least 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	if c.Security.EnableIPThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0 when IP throttle is enabled")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0 when IP throttle is enabled")
		}
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}
	if strings.TrimSpace(c.Security.CookieName) == "" {
		return errors.New("Security CookieName must not be empty")
	}
	if c.Security.SameSitePolicy != http.SameSiteStrictMode &&
		c.Security.SameSitePolicy != http.SameSiteLaxMode &&
		c.Security.SameSitePolicy != http.SameSiteNoneMode {
		return errors.New("Security SameSitePolicy must be Strict, Lax, or None")
	}
	if c.Security.ProductionMode && !c.Security.RequireSecureCookies {
		return errors.New("Security RequireSecureCookies must be true in production mode")
	}

	return nil
}

/*
====================================
COOKIE HELPERS
====================================
*/

// RefreshCookie builds the Set-Cookie value for a freshly issued refresh
// token. The cookie is HttpOnly, scoped to the configured path, carries the
// configured SameSite policy, and expires together with the token.
func (c *Config) RefreshCookie(token string) *http.Cookie {
	path := c.Security.CookiePath
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     c.Security.CookieName,
		Value:    token,
		Path:     path,
		MaxAge:   int(c.Token.RefreshTTL / time.Second),
		HttpOnly: true,
		Secure:   c.Security.RequireSecureCookies,
		SameSite: c.Security.SameSitePolicy,
	}
}

// ClearRefreshCookie builds the expired Set-Cookie value that removes the
// refresh cookie on logout.
func (c *Config) ClearRefreshCookie() *http.Cookie {
	path := c.Security.CookiePath
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     c.Security.CookieName,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Security.RequireSecureCookies,
		SameSite: c.Security.SameSitePolicy,
	}
}
