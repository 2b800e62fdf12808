// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunRefresh, RunValidate, etc.) accepts a typed
// dependency struct and returns a result carrying either the payload or a
// classified failure kind. The root package maps failure kinds to public errors,
// audit events and metrics; flows never do.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, token manager and rate
// limiter. They do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRenew (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
