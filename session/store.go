package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by Lookup when no row matches the session ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrKeyNotFound is returned by LookupKey when no autologin key row matches.
var ErrKeyNotFound = errors.New("autologin key not found")

// ErrStoreUnavailable wraps backend transport failures (SQL or Redis).
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrVariablesUnavailable is returned when the session-variables table is not
// configured. Variable access without the backing table is a deployment
// mistake, so this surfaces as a hard error rather than a silent no-op.
var ErrVariablesUnavailable = errors.New("session variables table not configured")

// VarNameMaxLen bounds session variable names at the schema limit.
const VarNameMaxLen = 80

// Store is the persistence contract for sessions, autologin keys, session
// variables, and the two engine-owned counters (GC timestamp and the
// unique-ID serial). Two implementations ship with the package: a SQL store
// over database/sql and a Redis store.
//
//	Docs: docs/session.md
type Store interface {
	Lookup(ctx context.Context, sessionID string) (*Session, error)
	Insert(ctx context.Context, s *Session) error
	Touch(ctx context.Context, sessionID string, now int64) error
	Delete(ctx context.Context, sessionID string) error

	LookupKey(ctx context.Context, keyHash string, userID int64) (*Key, error)
	UpsertKey(ctx context.Context, k *Key) error
	DeleteKey(ctx context.Context, userID int64) error

	GetVariable(ctx context.Context, sessionID, name string) (string, bool, error)
	SetVariable(ctx context.Context, sessionID, name, value string) error
	DeleteVariable(ctx context.Context, sessionID, name string) error

	// ExpiredSessions returns every row the policy considers dead at now.
	ExpiredSessions(ctx context.Context, policy ExpiryPolicy, now int64) ([]*Session, error)
	DeleteSessions(ctx context.Context, sessionIDs []string) error

	// TryAdvanceGC atomically moves the persisted last-GC timestamp to now
	// when at least interval seconds have passed, and reports whether this
	// caller won the slot. Losing callers must skip the sweep.
	TryAdvanceGC(ctx context.Context, now, interval int64) (bool, error)

	// NextSerial atomically increments and returns the persisted unique-ID
	// counter.
	NextSerial(ctx context.Context) (uint64, error)
}

// Tables carries the configurable SQL table names.
//
// Tables instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Tables struct {
	Sessions  string
	Keys      string
	Variables string
	Settings  string
}

// DefaultTables returns the stock table layout.
func DefaultTables() Tables {
	return Tables{
		Sessions:  "sessions",
		Keys:      "session_keys",
		Variables: "session_variables",
		Settings:  "session_settings",
	}
}
