package goRenew

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlyAKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "PrivateKey") {
		t.Fatalf("expected missing key error, got %v", err)
	}

	cfg.JWT.PrivateKey = testSigningKey(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key should validate: %v", err)
	}
}

func TestHighSecurityConfigValidates(t *testing.T) {
	cfg := HighSecurityConfig()
	cfg.JWT.PrivateKey = testSigningKey(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("high security config should validate: %v", err)
	}
	if cfg.ValidationMode != ModeStrict {
		t.Fatalf("expected strict validation, got %v", cfg.ValidationMode)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"long access ttl", func(c *Config) { c.JWT.AccessTTL = time.Hour }, "AccessTTL"},
		{"refresh not longer than access", func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, "RefreshTTL"},
		{"refresh above 30d", func(c *Config) { c.JWT.RefreshTTL = 31 * 24 * time.Hour }, "RefreshTTL"},
		{"negative leeway", func(c *Config) { c.JWT.Leeway = -time.Second }, "Leeway"},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "hs256" }, "signing method"},
		{"empty key id", func(c *Config) { c.JWT.KeyID = " " }, "KeyID"},
		{"empty issuer", func(c *Config) { c.JWT.Issuer = "" }, "Issuer"},
		{"negative retention", func(c *Config) { c.Session.Retention = -1 }, "Session"},
		{"zero csrf ttl", func(c *Config) { c.AntiForgery.TTL = 0 }, "AntiForgery TTL"},
		{"bad csrf mode", func(c *Config) { c.AntiForgery.Mode = AntiForgeryMode(9) }, "AntiForgery Mode"},
		{"no csrf header", func(c *Config) { c.AntiForgery.HeaderName = "" }, "HeaderName"},
		{"inherit as default mode", func(c *Config) { c.ValidationMode = ModeInherit }, "ValidationMode"},
		{"no login throttle", func(c *Config) { c.Security.MaxLoginAttempts = 0 }, "login throttle"},
		{"refresh throttle without budget", func(c *Config) { c.Security.MaxRefreshAttempts = 0 }, "refresh throttle"},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWT.AccessTTL = 0
	if _, err := New().WithConfig(cfg).WithSessionStore(nil).Build(); err == nil {
		t.Fatal("expected build error")
	}
}

func TestBuilderRequiresStoreOrRedis(t *testing.T) {
	_, err := New().WithConfig(testConfig(t)).WithLogger(discardLogger()).Build()
	if err == nil || !strings.Contains(err.Error(), "session store or redis") {
		t.Fatalf("expected missing store error, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().
		WithConfig(testConfig(t)).
		WithLogger(discardLogger()).
		WithSessionStore(newTestEngine(t, nil).store)
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer e.Close(t.Context())
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestEngineConfigIsACopy(t *testing.T) {
	te := newTestEngine(t, nil)

	cfg := te.Config()
	cfg.JWT.PrivateKey[0] ^= 0xff
	cfg.JWT.AccessTTL = time.Hour

	again := te.Config()
	if again.JWT.AccessTTL == time.Hour {
		t.Fatal("Config must return a copy")
	}
	if again.JWT.PrivateKey[0] == cfg.JWT.PrivateKey[0] {
		t.Fatal("Config must deep-copy key material")
	}
}
