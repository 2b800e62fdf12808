package goRenew

import (
	"strings"
	"testing"
	"time"
)

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func TestLint_DefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	codes := cfg.Lint().Codes()

	// Refresh throttle is on by default, IP throttle is not.
	if containsCode(codes, "rate_limits_disabled") {
		t.Error("default config should not report rate_limits_disabled")
	}
	if !containsCode(codes, "ip_throttle_disabled") {
		t.Error("default config should report ip_throttle_disabled")
	}
	if !containsCode(codes, "audit_disabled") {
		t.Error("default config should report audit_disabled")
	}
	if containsCode(codes, "csrf_ttl_long") {
		t.Error("default anti-forgery ttl should be short-lived")
	}
}

func TestLint_HighSecurityConfigMinimalWarnings(t *testing.T) {
	cfg := HighSecurityConfig()
	codes := cfg.Lint().Codes()

	unwanted := []string{
		"leeway_large",
		"access_ttl_long",
		"refresh_ttl_long",
		"rate_limits_disabled",
		"ip_throttle_disabled",
		"stateless_long_access",
		"audit_disabled",
		"argon2_memory_low",
	}
	for _, code := range unwanted {
		if containsCode(codes, code) {
			t.Errorf("HighSecurityConfig should not produce warning %q", code)
		}
	}
	if err := cfg.Lint().AsError(LintWarn); err != nil {
		t.Errorf("HighSecurityConfig should have no WARN findings: %v", err)
	}
}

func TestLint_Findings(t *testing.T) {
	cases := []struct {
		code     string
		severity LintSeverity
		mutate   func(*Config)
	}{
		{"leeway_large", LintWarn, func(c *Config) { c.JWT.Leeway = 90 * time.Second }},
		{"access_ttl_long", LintWarn, func(c *Config) { c.JWT.AccessTTL = 12 * time.Minute }},
		{"refresh_ttl_long", LintInfo, func(c *Config) { c.JWT.RefreshTTL = 20 * 24 * time.Hour }},
		{"rate_limits_disabled", LintHigh, func(c *Config) {
			c.Security.EnableIPThrottle = false
			c.Security.EnableRefreshThrottle = false
		}},
		{"stateless_long_access", LintHigh, func(c *Config) {
			c.ValidationMode = ModeStateless
			c.JWT.AccessTTL = 20 * time.Minute
		}},
		{"csrf_ttl_long", LintInfo, func(c *Config) { c.AntiForgery.TTL = 7 * 24 * time.Hour }},
		{"csrf_stateless", LintInfo, func(c *Config) { c.AntiForgery.Mode = AntiForgeryStateless }},
		{"audit_blocking", LintInfo, func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.DropIfFull = false
		}},
		{"argon2_memory_low", LintWarn, func(c *Config) { c.Password.Memory = 16 * 1024 }},
		{"signing_rs256", LintInfo, func(c *Config) { c.JWT.SigningMethod = "rs256" }},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			var found *LintWarning
			for _, w := range cfg.Lint() {
				if w.Code == tc.code {
					w := w
					found = &w
				}
			}
			if found == nil {
				t.Fatalf("expected lint code %q", tc.code)
			}
			if found.Severity != tc.severity {
				t.Fatalf("severity = %s, want %s", found.Severity, tc.severity)
			}
			if found.Message == "" {
				t.Fatal("lint warning without message")
			}
		})
	}
}

func TestLint_BySeverityAndAsError(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.EnableIPThrottle = false
	cfg.Security.EnableRefreshThrottle = false

	res := cfg.Lint()
	high := res.BySeverity(LintHigh)
	if len(high) != 1 || high[0].Code != "rate_limits_disabled" {
		t.Fatalf("unexpected HIGH findings: %+v", high)
	}

	err := res.AsError(LintHigh)
	if err == nil || !strings.Contains(err.Error(), "[HIGH] rate_limits_disabled") {
		t.Fatalf("unexpected AsError: %v", err)
	}
	if LintResult(nil).AsError(LintInfo) != nil {
		t.Fatal("empty result must not produce an error")
	}
}

func TestLint_SeverityString(t *testing.T) {
	for sev, want := range map[LintSeverity]string{
		LintInfo:        "INFO",
		LintWarn:        "WARN",
		LintHigh:        "HIGH",
		LintSeverity(9): "UNKNOWN",
	} {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.ValidationMode = ModeStrict
		c.Security.EnableIPThrottle = true
	})

	r := te.SecurityReport()
	if r.SigningAlgorithm != "ed25519" || r.KeyID != "k1" || r.VerifyKeyCount != 1 {
		t.Fatalf("unexpected key report: %+v", r)
	}
	if r.ValidationMode != ModeStrict || !r.IPThrottleActive || !r.RefreshThrottleActive || !r.LoginThrottleActive {
		t.Fatalf("unexpected throttle report: %+v", r)
	}
	if r.AuditEnabled {
		t.Fatal("audit is disabled in the test config")
	}
	if !containsCode(r.LintWarnings, "audit_disabled") {
		t.Fatalf("lint codes missing from report: %v", r.LintWarnings)
	}
}
