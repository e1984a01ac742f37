// Package goSession provides a framework-independent session and login core:
// database-backed sessions with optional persistent ("remember me") logins,
// pluggable authentication methods, and an anonymous-user fallback so every
// visitor always holds a valid session.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Per-request state lives on the [Handle] an Engine returns,
// never on the Engine itself.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config],
// [Handle] and the collaborator interfaces ([UserDirectory], [AuthMethod]).
// Storage lives in the session sub-package behind [session.Store], with SQL
// and Redis implementations; token generation lives under internal/ and is
// never exported.
//
// # What this package must NOT do
//
//   - Depend on any HTTP framework. [Request] and [Handle.Cookies] are the
//     only points of contact with net/http, and both are optional.
//   - Store plaintext autologin secrets. Storage only ever sees hashes; the
//     plaintext exists on a Handle for one request.
//   - Leave a request without a session. When nothing valid is presented the
//     engine falls back to the configured anonymous user.
//
// # Lifecycle contract
//
// Initialize is the hot path. A valid presented session costs one storage
// lookup plus at most one touch write per minute; garbage collection runs at
// most once per configured interval across all engines sharing a store.
package goSession
