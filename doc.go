// Package goRenew issues and validates short-lived access tokens backed by rotating refresh
// tokens, with anti-forgery tokens for cookie-carried credentials and a renewal protocol that
// lets clients refresh silently when an access token expires.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRenew is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([TokenBundle], [AuthResult], [SessionInfo]). Flow orchestration, audit dispatch and rate
// limiting live under internal/. Token signing is in jwt, session state in session, and
// credential checks in credential and federation.
//
// # Validation modes
//
// [ModeStateless] checks signature and claims only, so a revoked session keeps working until
// its access token expires. [ModeStrict] additionally asks the session store and fails closed
// when the store is unreachable.
//
// # Refresh tokens
//
// Every refresh token is single use. Presenting a consumed token a second time is treated as
// theft: the session is revoked and [ErrSessionCompromised] is returned to both parties.
package goRenew
