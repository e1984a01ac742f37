package session

// Session is the persisted per-visitor row. One row exists per session ID;
// the ID itself is an unguessable hex digest minted by the engine.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SessionID string
	UserID    int64
	IP        string
	Autologin bool

	CreatedAt int64
	TouchedAt int64
}

// Key is a persisted autologin key row. At most one row exists per user;
// KeyHash is the one-way hash of the plaintext key carried in the cookie.
//
// Key instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Key struct {
	KeyHash   string
	UserID    int64
	LastIP    string
	LastLogin int64
}

// expiryGrace absorbs touch granularity: sessions are touched at most once
// per minute, so the cutoff gets an extra minute of slack.
const expiryGrace = 60

// ExpiryPolicy decides when a session row is dead. It mirrors the engine
// configuration so stores can run garbage-collection sweeps without a
// back-reference to the engine.
type ExpiryPolicy struct {
	SessionLength    int64 // seconds a non-autologin session stays valid after its last touch
	AllowAutologin   bool
	MaxAutologinDays int64 // 0 means autologin sessions never expire by age
}

// Expired reports whether s is past its lifetime at the given unix time.
//
// Expired does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p ExpiryPolicy) Expired(s *Session, now int64) bool {
	if s == nil {
		return true
	}

	if !s.Autologin {
		return now-s.TouchedAt > p.SessionLength+expiryGrace
	}

	if !p.AllowAutologin {
		return true
	}
	if p.MaxAutologinDays > 0 {
		return now-s.TouchedAt > 86400*p.MaxAutologinDays+expiryGrace
	}

	return false
}
