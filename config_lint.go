package goRenew

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding of [Config.Lint].
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings, in check order.
type LintResult []LintWarning

// Codes returns the warning codes.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above min, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return errors.New("config lint: " + strings.Join(parts, "; "))
}

// Lint reports settings that are valid but risky. Unlike Validate it never fails; Build does
// not call it.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "leeway above 1m widens the replay window of expired tokens")
	}
	if c.JWT.AccessTTL > 10*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens cannot be revoked before they expire")
	}
	if c.JWT.RefreshTTL > 14*24*time.Hour {
		add("refresh_ttl_long", LintInfo, "refresh lifetime above 14d")
	}
	if !c.Security.EnableIPThrottle && !c.Security.EnableRefreshThrottle {
		add("rate_limits_disabled", LintHigh, "both IP and refresh throttles are off")
	} else if !c.Security.EnableIPThrottle {
		add("ip_throttle_disabled", LintInfo, "failed logins are only throttled per identifier")
	}
	if c.ValidationMode == ModeStateless && c.JWT.AccessTTL > 15*time.Minute {
		add("stateless_long_access", LintHigh, "logout is not observed for the access token lifetime")
	}
	if c.AntiForgery.TTL > time.Hour {
		add("csrf_ttl_long", LintInfo, "anti-forgery tokens stay usable above 1h")
	}
	if c.AntiForgery.Mode == AntiForgeryStateless {
		add("csrf_stateless", LintInfo, "anti-forgery tokens stay valid after logout")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "refresh reuse detections are only logged")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintInfo, "a slow audit sink blocks request handling")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory below 64 MiB")
	}
	if c.JWT.SigningMethod == "rs256" {
		add("signing_rs256", LintInfo, "rs256 tokens are larger and slower to sign than ed25519")
	}

	return ws
}
