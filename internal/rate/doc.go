// Package rate implements the login and refresh throttles used by the engine.
//
// # Window semantics
//
// The Redis limiter uses fixed-window counters: INCR + conditional EXPIRE on first hit.
// Key suffixes under the configured prefix:
//   - rl:lu:  failed logins per identifier
//   - rl:li:  failed logins per client IP
//   - rl:r:   refresh attempts per session
//
// The local limiter keeps token buckets (golang.org/x/time/rate) in process memory and is
// meant for single-instance deployments without Redis.
//
// # What this package must NOT do
//
//   - Decide what counts as a failure. Callers increment.
//   - Be imported outside the goRenew module.
package rate
