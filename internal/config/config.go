// Package config loads settings for the goRenew server binary: defaults, then GORENEW_*
// environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
)

// Server holds runtime settings for cmd/goRenew-server.
type Server struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// SessionStore is "sql", "redis" or "memory".
	SessionStore string
	RedisAddr    string
	RedisPrefix  string
	// DatabaseDialect is "sqlite" or "postgres". The principal directory always lives in SQL.
	DatabaseDialect string
	DatabaseDSN     string

	// SigningKeyFile holds a PEM private key. Empty generates an ephemeral Ed25519 key.
	SigningKeyFile string
	SigningMethod  string
	KeyID          string
	Issuer         string
	Audience       string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ValidationMode string
	Production     bool

	SecureCookies     bool
	TrustProxyHeaders bool
	HTTPRatePerMinute int

	// FederationFile is a JSON document listing trusted identity providers.
	FederationFile string

	KafkaBrokers []string
	KafkaTopic   string

	BootstrapEmail    string
	BootstrapPassword string
}

// Defaults are suitable for local development only.
func Defaults() Server {
	return Server{
		Addr:              ":8080",
		LogLevel:          "info",
		LogFormat:         "json",
		ShutdownTimeout:   10 * time.Second,
		SessionStore:      "sql",
		RedisAddr:         "localhost:6379",
		RedisPrefix:       "rn",
		DatabaseDialect:   "sqlite",
		DatabaseDSN:       "gorenew.db",
		SigningMethod:     "ed25519",
		KeyID:             "k1",
		Issuer:            "goRenew",
		Audience:          "goRenew",
		AccessTTL:         5 * time.Minute,
		RefreshTTL:        7 * 24 * time.Hour,
		ValidationMode:    "stateless",
		HTTPRatePerMinute: 60,
		KafkaTopic:        "gorenew.audit",
	}
}

// Load applies defaults, the environment read through getenv, and finally args.
func Load(args []string, getenv func(string) string) (Server, error) {
	cfg := Defaults()
	if err := cfg.applyEnv(getenv); err != nil {
		return Server{}, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// FromEnvironment is Load over os.Args and os.Getenv.
func FromEnvironment() (Server, error) {
	return Load(os.Args[1:], os.Getenv)
}

func (c *Server) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("GORENEW_ADDR", &c.Addr)
	str("GORENEW_LOG_LEVEL", &c.LogLevel)
	str("GORENEW_LOG_FORMAT", &c.LogFormat)
	dur("GORENEW_SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	str("GORENEW_SESSION_STORE", &c.SessionStore)
	str("GORENEW_REDIS_ADDR", &c.RedisAddr)
	str("GORENEW_REDIS_PREFIX", &c.RedisPrefix)
	str("GORENEW_DATABASE_DIALECT", &c.DatabaseDialect)
	str("GORENEW_DATABASE_DSN", &c.DatabaseDSN)
	str("GORENEW_SIGNING_KEY_FILE", &c.SigningKeyFile)
	str("GORENEW_SIGNING_METHOD", &c.SigningMethod)
	str("GORENEW_KEY_ID", &c.KeyID)
	str("GORENEW_ISSUER", &c.Issuer)
	str("GORENEW_AUDIENCE", &c.Audience)
	dur("GORENEW_ACCESS_TTL", &c.AccessTTL)
	dur("GORENEW_REFRESH_TTL", &c.RefreshTTL)
	str("GORENEW_VALIDATION_MODE", &c.ValidationMode)
	boolean("GORENEW_PRODUCTION", &c.Production)
	boolean("GORENEW_SECURE_COOKIES", &c.SecureCookies)
	boolean("GORENEW_TRUST_PROXY", &c.TrustProxyHeaders)
	str("GORENEW_FEDERATION_FILE", &c.FederationFile)
	str("GORENEW_KAFKA_TOPIC", &c.KafkaTopic)
	str("GORENEW_BOOTSTRAP_EMAIL", &c.BootstrapEmail)
	str("GORENEW_BOOTSTRAP_PASSWORD", &c.BootstrapPassword)

	if v := getenv("GORENEW_HTTP_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GORENEW_HTTP_RATE_PER_MINUTE: %w", err))
		} else {
			c.HTTPRatePerMinute = n
		}
	}
	if v := getenv("GORENEW_KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the server-level settings. Token settings are validated again by the
// engine builder.
func (c Server) Validate() error {
	switch c.SessionStore {
	case "sql", "redis", "memory":
	default:
		return fmt.Errorf("unsupported session store %q", c.SessionStore)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.SessionStore == "redis" && c.RedisAddr == "" {
		return errors.New("redis session store needs GORENEW_REDIS_ADDR")
	}
	if c.DatabaseDSN == "" {
		return errors.New("GORENEW_DATABASE_DSN is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.HTTPRatePerMinute < 0 {
		return errors.New("http rate must not be negative")
	}
	if (c.BootstrapEmail == "") != (c.BootstrapPassword == "") {
		return errors.New("bootstrap email and password must be set together")
	}
	if c.Production && c.SigningKeyFile == "" {
		return errors.New("production mode requires a signing key file")
	}
	return nil
}

// Mode parses ValidationMode.
func (c Server) Mode() (goRenew.ValidationMode, error) {
	switch strings.ToLower(c.ValidationMode) {
	case "stateless", "":
		return goRenew.ModeStateless, nil
	case "strict":
		return goRenew.ModeStrict, nil
	default:
		return 0, fmt.Errorf("unsupported validation mode %q", c.ValidationMode)
	}
}

// EngineConfig maps the server settings onto an engine configuration. privateKey is the
// signing key material read from SigningKeyFile or generated.
func (c Server) EngineConfig(privateKey []byte) goRenew.Config {
	var cfg goRenew.Config
	if c.Production {
		cfg = goRenew.HighSecurityConfig()
	} else {
		cfg = goRenew.DefaultConfig()
	}
	mode, _ := c.Mode()

	cfg.JWT.SigningMethod = c.SigningMethod
	cfg.JWT.PrivateKey = privateKey
	cfg.JWT.KeyID = c.KeyID
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.Audience = c.Audience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.Session.RedisPrefix = c.RedisPrefix
	cfg.ValidationMode = mode
	cfg.Security.ProductionMode = c.Production
	if len(c.KafkaBrokers) > 0 {
		cfg.Audit.Enabled = true
	}
	cfg.Metrics.Enabled = true
	return cfg
}
