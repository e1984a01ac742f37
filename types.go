package goSession

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// UserType represents the lifecycle class of a user account.
type UserType uint8

const (
	// UserNormal is an exported constant or variable used by the session engine.
	UserNormal UserType = 0
	// UserInactive is an exported constant or variable used by the session engine.
	UserInactive UserType = 1
	// UserAnonymous is an exported constant or variable used by the session engine.
	UserAnonymous UserType = 2
	// UserAdmin is an exported constant or variable used by the session engine.
	UserAdmin UserType = 3
)

// Real reports whether the type belongs to a registered, non-disabled,
// non-anonymous account. Only real users can hold autologin keys.
func (t UserType) Real() bool {
	return t == UserNormal || t == UserAdmin
}

// UserRecord is the minimal account record the engine needs. It is owned by
// the host application's user database and referenced, never mutated, by
// this core — except for auth-method assignment bookkeeping, which goes
// through [UserDirectory.SetAuthMethodFor].
type UserRecord struct {
	UserID   int64
	Username string
	Type     UserType

	// AuthMethod is the ID of the user's assigned auth method, 0 when
	// unset.
	AuthMethod int
}

// UserDirectory is the credential-store interface callers must implement to
// integrate goSession with their user database.
//
//	Docs: docs/engine.md
type UserDirectory interface {
	// GetUserByID returns the record for id, or nil when absent. With
	// onlyReal set, inactive and anonymous accounts count as absent.
	GetUserByID(ctx context.Context, id int64, onlyReal bool) (*UserRecord, error)
	// GetUserByUsername mirrors GetUserByID for username lookup.
	GetUserByUsername(ctx context.Context, username string, onlyReal bool) (*UserRecord, error)
	// IsUserBlocked reports whether the named account is blocked from
	// logging in at all (checked before any auth method runs).
	IsUserBlocked(ctx context.Context, username string) (bool, error)
	// SetAuthMethodFor records the method that last authenticated the
	// user, so the next login tries it first.
	SetAuthMethodFor(ctx context.Context, username string, methodID int) error
	// PostAuthHook runs after credentials matched. A non-nil error rejects
	// the login anyway; the engine wraps it in [ErrHookRejected].
	PostAuthHook(ctx context.Context, username string) error
}

// PasswordSource is an optional [UserDirectory] extension consumed by the
// database-password auth method. The stored hash uses the bcrypt format.
type PasswordSource interface {
	// PasswordHashFor returns the stored hash for username; absent means
	// the password method simply does not apply to this account.
	PasswordHashFor(ctx context.Context, username string) (string, bool, error)
}

// LastVisitRecorder is an optional [UserDirectory] extension. When present,
// the engine records last-visit times on logout and during garbage
// collection; when absent those updates are silently skipped.
type LastVisitRecorder interface {
	RecordLastVisit(ctx context.Context, userID int64, when int64) error
}

// Request carries the three session credentials a client may present plus
// its remote address. It replaces direct coupling to any HTTP framework:
// hosts either fill it by hand or use [RequestFromHTTP].
type Request struct {
	SessionID     string
	ClaimedUserID int64
	AutologinKey  string
	RemoteAddr    string
}

// RequestFromHTTP extracts session credentials from r's cookies, falling
// back to the "sid" query parameter for the session ID only. cookieName is
// the configured cookie base name.
func RequestFromHTTP(r *http.Request, cookieName string) Request {
	req := Request{}

	if c, err := r.Cookie(cookieName + "_sid"); err == nil {
		req.SessionID = c.Value
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("sid")
	}
	if c, err := r.Cookie(cookieName + "_uid"); err == nil {
		if uid, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			req.ClaimedUserID = uid
		}
	}
	if c, err := r.Cookie(cookieName + "_key"); err == nil {
		req.AutologinKey = c.Value
	}

	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 && strings.Count(host, ":") == 1 {
		host = host[:i]
	}
	req.RemoteAddr = strings.Trim(host, "[]")

	return req
}

// CreateOptions steers CreateSession. The zero value produces an anonymous
// session.
type CreateOptions struct {
	// UserID authenticates the new session as this user. Zero means no
	// explicit user; resolution falls through to autologin or anonymous.
	UserID int64
	// Persist requests an autologin key. Only honored for real users when
	// autologin is globally enabled.
	Persist bool
	// Variables are written as session variables after the row exists.
	Variables map[string]string
}
