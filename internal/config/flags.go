package config

import (
	"flag"
	"io"
	"strings"
)

// parseFlags overrides settings from args. Flag names mirror the environment variables
// without the GORENEW_ prefix.
func (c *Server) parseFlags(args []string) error {
	fs := flag.NewFlagSet("goRenew-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "json or text")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&c.SessionStore, "session-store", c.SessionStore, "sql, redis or memory")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis address")
	fs.StringVar(&c.DatabaseDialect, "database-dialect", c.DatabaseDialect, "sqlite or postgres")
	fs.StringVar(&c.DatabaseDSN, "database-dsn", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.SigningKeyFile, "signing-key-file", c.SigningKeyFile, "PEM private key")
	fs.StringVar(&c.SigningMethod, "signing-method", c.SigningMethod, "ed25519 or rs256")
	fs.StringVar(&c.KeyID, "key-id", c.KeyID, "kid of the signing key")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "refresh token lifetime")
	fs.StringVar(&c.ValidationMode, "validation-mode", c.ValidationMode, "stateless or strict")
	fs.BoolVar(&c.Production, "production", c.Production, "enforce production hardening")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", c.SecureCookies, "mark cookies Secure")
	fs.BoolVar(&c.TrustProxyHeaders, "trust-proxy", c.TrustProxyHeaders, "take client IPs from X-Forwarded-For")
	fs.IntVar(&c.HTTPRatePerMinute, "http-rate-per-minute", c.HTTPRatePerMinute, "per-IP request budget on /auth routes, 0 disables")
	fs.StringVar(&c.FederationFile, "federation-file", c.FederationFile, "identity provider JSON file")
	brokers := fs.String("kafka-brokers", strings.Join(c.KafkaBrokers, ","), "comma separated Kafka brokers for audit events")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka audit topic")

	if err := fs.Parse(args); err != nil {
		return err
	}
	c.KafkaBrokers = splitList(*brokers)
	return nil
}
