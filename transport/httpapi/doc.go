// Package httpapi serves the browser-facing auth endpoints of an engine.
//
// The refresh token never leaves its HttpOnly cookie, which is scoped to /auth. The access
// token travels in a second HttpOnly cookie sent to every path, and is also returned in the
// body for non-browser clients that prefer the Authorization header. Responses carry a
// session-bound anti-forgery token; every state-changing call must echo it in the
// X-CSRF-Token header. Login forms obtain an anonymous anti-forgery token from GET /auth/csrf
// first.
//
//	POST   /auth/login             email and password
//	POST   /auth/login/federated   provider ID token
//	POST   /auth/refresh           rotate the refresh cookie, issue a new access token
//	POST   /auth/logout            revoke the session and clear cookies
//	GET    /auth/csrf              anonymous anti-forgery token
//	GET    /auth/csrf/session      anti-forgery token for the caller's session
//	GET    /auth/sessions          the caller's active sessions
//	DELETE /auth/sessions/{id}     revoke one of them
//	GET    /.well-known/jwks.json  verification keys
//	GET    /metrics                Prometheus exposition
//	GET    /healthz                session store health
//
// An expired access token is answered with 401 and the X-Auth-Renewal header so that
// clients renew silently and retry.
package httpapi
