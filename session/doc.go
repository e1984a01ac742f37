// Package session defines the persisted session model and its storage
// backends.
//
// The model is three kinds of rows: sessions (one per visitor), autologin
// keys (at most one per user, rotated on every persistent login), and
// session variables (scalar values keyed by session and name). Two [Store]
// implementations ship with the package: [SQLStore] over database/sql and
// [RedisStore] over go-redis. Both enforce the same expiry policy and the
// same atomic garbage-collection gate, so the engine above them is backend
// agnostic.
//
// Expiry is a policy decision, not a storage feature: neither backend
// attaches TTLs to rows. The engine's garbage-collection sweep is the only
// thing that removes dead sessions, which lets it record last-visit times
// before deletion.
package session
