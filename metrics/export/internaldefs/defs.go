package internaldefs

import (
	goRenew "github.com/MrEthical07/goRenew"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goRenew.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goRenew.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: goRenew.MetricLoginSuccess, Name: "gorenew_login_success_total", Help: "Successful logins."},
	{ID: goRenew.MetricLoginFailure, Name: "gorenew_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: goRenew.MetricLoginRateLimited, Name: "gorenew_login_rate_limited_total", Help: "Logins rejected by the failed-login budget."},
	{ID: goRenew.MetricFederatedLogin, Name: "gorenew_federated_login_total", Help: "Successful federated logins."},
	{ID: goRenew.MetricRefreshSuccess, Name: "gorenew_refresh_success_total", Help: "Successful token renewals."},
	{ID: goRenew.MetricRefreshInvalid, Name: "gorenew_refresh_invalid_total", Help: "Renewals rejected with an invalid, expired or revoked refresh token."},
	{ID: goRenew.MetricRefreshReuseDetected, Name: "gorenew_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: goRenew.MetricRefreshAlreadyConsumed, Name: "gorenew_refresh_already_consumed_total", Help: "Renewals that lost a concurrent refresh race."},
	{ID: goRenew.MetricRefreshRateLimited, Name: "gorenew_refresh_rate_limited_total", Help: "Renewals rejected by the per-session budget."},
	{ID: goRenew.MetricSessionCreated, Name: "gorenew_session_created_total", Help: "Created sessions."},
	{ID: goRenew.MetricSessionRevoked, Name: "gorenew_session_revoked_total", Help: "Revoked sessions."},
	{ID: goRenew.MetricLogout, Name: "gorenew_logout_total", Help: "Logout operations."},
	{ID: goRenew.MetricValidateSuccess, Name: "gorenew_validate_success_total", Help: "Accepted access tokens."},
	{ID: goRenew.MetricValidateExpired, Name: "gorenew_validate_expired_total", Help: "Expired access tokens."},
	{ID: goRenew.MetricValidateRejected, Name: "gorenew_validate_rejected_total", Help: "Access tokens rejected for reasons other than expiry."},
	{ID: goRenew.MetricCSRFRejected, Name: "gorenew_csrf_rejected_total", Help: "Requests rejected by anti-forgery validation."},
	{ID: goRenew.MetricRateLimitHit, Name: "gorenew_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: goRenew.MetricBackendUnavailable, Name: "gorenew_backend_unavailable_total", Help: "Operations failed on an unavailable backend."},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goRenew.MetricValidateLatency, Name: "gorenew_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: goRenew.MetricRefreshLatency, Name: "gorenew_refresh_latency_seconds", Help: "Token renewal latency."},
}

// AuditDroppedName is the counter of audit events dropped under backpressure.
const AuditDroppedName = "gorenew_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 8

// HistogramUpperBounds are the finite bucket bounds in seconds.
var HistogramUpperBounds = [BucketCount - 1]float64{
	0.0005,
	0.001,
	0.0025,
	0.005,
	0.01,
	0.025,
	0.1,
}

// NormalizeBuckets copies raw into a fixed-size array, padding missing buckets with zero.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last element is the
// sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
