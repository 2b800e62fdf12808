// Package session persists refresh-token lineage per session and is the only owner of the
// protocol's shared mutable state.
//
// # Lineage
//
// A session has exactly one current refresh token. Consuming it moves it to consumed; recording
// its successor moves it to rotated. Presenting a rotated token again is treated as theft: the
// store revokes the whole session in the same atomic step and reports [ErrReused]. Revocation is
// terminal.
//
// # Implementations
//
//   - [RedisStore]: Lua scripts make consume, record and revoke single atomic round trips.
//   - [SQLStore]: postgres or sqlite; a conditional UPDATE inside a transaction is the
//     compare-and-swap.
//   - [MemoryStore]: one process only; tests and local development.
//
// # Architecture boundaries
//
// This package stores token identifiers (jti), never signed tokens. It does NOT verify
// signatures or decide how a reuse is reported to clients; that belongs to the Engine.
package session
