package goRenew

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	AntiForgery    AntiForgeryConfig
	Security       SecurityConfig
	Password       PasswordConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing keys and token lifetimes.
//
// VerifyKeys lists the public keys of previous signing keys by kid. Keep a retired key here
// for at least RefreshTTL after rotating so that outstanding tokens still verify.
type JWTConfig struct {
	SigningMethod string // "ed25519" (default) or "rs256"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte

	Issuer   string
	Audience string
	Leeway   time.Duration

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the session store the builder creates from a Redis client.
type SessionConfig struct {
	RedisPrefix string
	// Retention keeps rotated lineage records past their refresh expiry for audit and reuse
	// detection.
	Retention time.Duration
	// PendingTTL bounds how long a session may exist before its first refresh token is recorded.
	PendingTTL time.Duration
}

/*
====================================
ANTI-FORGERY CONFIG
====================================
*/

// AntiForgeryConfig controls anti-forgery token issuance and validation.
//
// TTL bounds how long a token guards ordinary state-changing requests. Refresh and logout
// still require the authenticated token of the same triple but accept it past its expiry, so
// TTL can stay far below JWT.RefreshTTL without forcing idle clients to log in again.
type AntiForgeryConfig struct {
	Mode       AntiForgeryMode
	TTL        time.Duration
	HeaderName string
	CookieName string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds throttling and hardening switches.
type SecurityConfig struct {
	ProductionMode          bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
	// LinkVerifiedEmail attaches a first federated login to an existing principal with the
	// same email, provided the identity provider marks the email as verified.
	LinkVerifiedEmail bool
	// DefaultRoles are assigned to principals created by federated login.
	DefaultRoles []string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a development-friendly configuration without key material.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			KeyID:         "k1",
			Issuer:        "goRenew",
			Audience:      "goRenew",
			Leeway:        0,
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix: "rn",
			Retention:   24 * time.Hour,
			PendingTTL:  time.Minute,
		},
		AntiForgery: AntiForgeryConfig{
			Mode:       AntiForgerySessionBound,
			TTL:        15 * time.Minute,
			HeaderName: "X-CSRF-Token",
			CookieName: "csrf_token",
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
			LinkVerifiedEmail:       false,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
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
		ValidationMode: ModeStateless,
	}
}

// HighSecurityConfig returns DefaultConfig hardened for production: short access tokens,
// strict validation, every throttle on and auditing enabled.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = 7 * 24 * time.Hour
	cfg.Security.ProductionMode = true
	cfg.Security.EnableIPThrottle = true
	cfg.Security.EnableRefreshThrottle = true
	cfg.Security.MaxLoginAttempts = 5
	cfg.Security.MaxRefreshAttempts = 10
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.ValidationMode = ModeStrict
	cfg.AntiForgery.Mode = AntiForgerySessionBound
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	if cfg.Security.DefaultRoles != nil {
		out.Security.DefaultRoles = append([]string(nil), cfg.Security.DefaultRoles...)
	}
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
	// JWT
	if c.JWT.AccessTTL <= 0 || c.JWT.AccessTTL > 30*time.Minute {
		return errors.New("JWT AccessTTL must be in (0, 30m]")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		return errors.New("JWT RefreshTTL must be <= 30d")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be in [0, 2m]")
	}

	switch c.JWT.SigningMethod {
	case "ed25519", "rs256":
	default:
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}
	if strings.TrimSpace(c.JWT.KeyID) == "" {
		return errors.New("JWT KeyID is required")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" || strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Issuer and Audience are required")
	}

	// Session
	if c.Session.Retention < 0 || c.Session.PendingTTL < 0 {
		return errors.New("Session durations must be >= 0")
	}

	// Anti-forgery
	if c.AntiForgery.TTL <= 0 {
		return errors.New("AntiForgery TTL must be > 0")
	}
	switch c.AntiForgery.Mode {
	case AntiForgerySessionBound, AntiForgeryStateless:
	default:
		return errors.New("invalid AntiForgery Mode")
	}
	if strings.TrimSpace(c.AntiForgery.HeaderName) == "" {
		return errors.New("AntiForgery HeaderName is required")
	}

	// Validation mode
	switch c.ValidationMode {
	case ModeStateless, ModeStrict:
	default:
		return errors.New("invalid ValidationMode")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security login throttle must be configured")
	}
	if c.Security.EnableRefreshThrottle &&
		(c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldownDuration <= 0) {
		return errors.New("Security refresh throttle must be configured when enabled")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.Leeway > time.Minute {
			return errors.New("ProductionMode requires JWT Leeway <= 1m")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("ProductionMode requires Password Parallelism >= 1")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("ProductionMode requires Password SaltLength >= 16")
		}
		if !c.Security.EnableRefreshThrottle {
			return errors.New("ProductionMode requires refresh throttling")
		}
	}

	return nil
}
