// Package internal groups the engine's private building blocks.
//
//   - audit: async event dispatch onto a bounded queue
//   - config: server configuration from environment and flags
//   - dbx: SQL dialect helpers shared by stores and migrations
//   - flows: the login, refresh, logout and validation orchestration
//   - ids: session IDs and sortable token IDs
//   - migrations: goose migrations for the SQL schema
//   - rate: login and refresh throttles, local or Redis-backed
package internal
