// Package middleware guards HTTP handlers and gRPC services with goRenew access tokens.
//
// [Guard] reads the bearer token (or an access cookie), validates it through the engine and
// stores the [goRenew.AuthResult] in the request context. [RequireAntiForgery] checks the
// anti-forgery header on state-changing requests. [UnaryServerInterceptor] and
// [StreamServerInterceptor] do the same for gRPC metadata.
//
// Every adapter answers through [Classify]. Only an expired access token carries the renewal
// marker; any other failure means the client must log in again.
//
// This package holds no token or session logic of its own.
package middleware
