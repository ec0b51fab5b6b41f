// Package ctxstore defines the scoped context store used by dCtx: a contract for
// keeping per-scope JSON values in a remote hash store, shared by all implementations.
//
// Key Components:
//
//   - IContextStore: Core interface with the lifecycle (Open, Close) and the data
//     operations (Get, GetMany, Set, SetMany, UnsetMany, Keys, Delete, Clean).
//
//   - Undefined: Sentinel value. Writing it removes a key instead of storing it.
//
//   - Config: Connection settings (host, port, credentials, database, scope prefix,
//     default timeout) shared by every implementation.
//
//   - Error: Typed error carrying a RetCode. Use errors.Is with the Err* sentinels
//     to distinguish connection, store, serialization and argument failures.
//
//   - CallbackStore: Adapter that exposes every operation with an error-first
//     completion handler for hosts that are built around callbacks.
//
// Scopes are namespaced with the configured prefix as "prefix:scope". The available
// implementations live in the subpackages rstore (Redis) and mstore (in-memory), the
// shared conformance suite in testing.
package ctxstore
