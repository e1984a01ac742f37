package goSession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hvolkner/goSession/internal"
	"github.com/hvolkner/goSession/jwt"
	"github.com/hvolkner/goSession/session"
)

// touchWindow limits how often a session row is rewritten for activity.
// Within the window a request reuses the stored touch time.
const touchWindow = 60

// Engine is the session core. It is shared, stateless per request, and safe
// for concurrent use; per-request state lives on the [Handle] values it
// returns. Build one with [New].
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	cfg       Config
	store     session.Store
	directory UserDirectory
	registry  *Registry
	auth      *Authenticator
	audit     *auditDispatcher
	metrics   *Metrics
	assert    *jwt.Manager

	// now is the clock; tests substitute it to simulate expiry.
	now func() time.Time

	closeOnce sync.Once
}

// Initialize resolves the credentials in req into a live session, creating a
// fresh one when nothing valid was presented. The returned handle always
// carries a session and its user record; a visitor with no credentials gets
// the anonymous user.
//
// Initialize may return an error when input validation, dependency calls, or security checks fail.
// Initialize does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Initialize(ctx context.Context, req Request) (*Handle, error) {
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricInitializeLatency, time.Since(start))
	}()

	if err := e.collectGarbage(ctx); err != nil {
		log.Print("goSession: garbage collection failed: ", err)
	}

	ip := e.clientIP(ctx, req)
	nowUnix := e.now().Unix()

	if req.SessionID != "" {
		h, err := e.resumeSession(ctx, req, ip, nowUnix)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
	}

	return e.CreateSession(ctx, req, CreateOptions{})
}

// resumeSession tries to validate and touch the session named by req. A nil
// handle with nil error means the session could not be used and the caller
// should create a new one.
func (e *Engine) resumeSession(ctx context.Context, req Request, ip string, nowUnix int64) (*Handle, error) {
	s, err := e.store.Lookup(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	reason := ""
	switch {
	case req.ClaimedUserID != s.UserID:
		reason = "claimed user mismatch"
	case !ipMatches(e.cfg.Session.IPCheckOctets, ip, s.IP):
		reason = "ip mismatch"
	case e.expiryPolicy().Expired(s, nowUnix):
		reason = "expired"
	}

	var user *UserRecord
	if reason == "" {
		user, err = e.directory.GetUserByID(ctx, s.UserID, false)
		if err != nil {
			return nil, err
		}
		switch {
		case user == nil:
			reason = "unknown user"
		case !user.Type.Real() && user.UserID != e.cfg.Session.AnonymousUserID:
			// An account disabled mid-session loses the session with it.
			reason = "inactive user"
		}
	}

	if reason != "" {
		e.metrics.Inc(MetricSessionRejected)
		ev := newAuditEvent(EventSessionRejected, s.UserID, s.SessionID, ip, false)
		ev.Error = reason
		e.audit.Emit(ctx, ev)

		// Only a dead row is removed here. A mismatched claim or address
		// must not let one client destroy another's live session.
		if reason == "expired" {
			if err := e.store.Delete(ctx, s.SessionID); err != nil &&
				!errors.Is(err, session.ErrSessionNotFound) {
				log.Print("goSession: stale session delete failed: ", err)
			}
		}
		return nil, nil
	}

	if nowUnix-s.TouchedAt >= touchWindow {
		if err := e.store.Touch(ctx, s.SessionID, nowUnix); err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) {
				return nil, err
			}
			// Raced with GC; start over.
			return nil, nil
		}
		s.TouchedAt = nowUnix
	}

	e.metrics.Inc(MetricSessionValid)
	e.audit.Emit(ctx, newAuditEvent(EventSessionValid, s.UserID, s.SessionID, ip, true))

	return &Handle{engine: e, session: s, user: user}, nil
}

// CreateSession builds a brand-new session row. Identity resolution order:
// a presented autologin key, then opts.UserID, then the anonymous user. The
// anonymous account must exist; its absence is a configuration error and is
// reported as [ErrAnonymousUserMissing].
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CreateSession(ctx context.Context, req Request, opts CreateOptions) (*Handle, error) {
	ip := e.clientIP(ctx, req)
	nowUnix := e.now().Unix()

	userID := int64(0)
	viaKey := false

	// A valid autologin key settles identity before an explicit user id.
	if e.cfg.Autologin.Allow && req.AutologinKey != "" && req.ClaimedUserID != 0 {
		ok, err := e.checkAutologinKey(ctx, req)
		if err != nil {
			return nil, err
		}
		if ok {
			userID = req.ClaimedUserID
			viaKey = true
		}
	}
	if userID == 0 {
		userID = opts.UserID
	}

	var user *UserRecord
	var err error

	if userID != 0 {
		user, err = e.directory.GetUserByID(ctx, userID, true)
		if err != nil {
			return nil, err
		}
		if user == nil {
			// Requested identity does not resolve to a usable account.
			userID = 0
			viaKey = false
		}
	}

	if userID == 0 {
		user, err = e.directory.GetUserByID(ctx, e.cfg.Session.AnonymousUserID, false)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrAnonymousUserMissing
		}
	}

	persist := user.Type.Real() && e.cfg.Autologin.Allow && (viaKey || opts.Persist)

	token, err := e.auth.UniqueID(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	sid := internal.SessionID(token)

	s := &session.Session{
		SessionID: sid,
		UserID:    user.UserID,
		IP:        ip,
		Autologin: persist,
		CreatedAt: nowUnix,
		TouchedAt: nowUnix,
	}
	if err := e.store.Insert(ctx, s); err != nil {
		return nil, err
	}

	h := &Handle{engine: e, session: s, user: user}

	if persist {
		if err := e.setLoginKey(ctx, h, ip, nowUnix); err != nil {
			return nil, err
		}
	}

	for name, value := range opts.Variables {
		if err := h.SetVariable(ctx, name, value); err != nil {
			return nil, err
		}
	}

	if viaKey {
		e.metrics.Inc(MetricSessionAutologin)
		e.audit.Emit(ctx, newAuditEvent(EventSessionAutologin, user.UserID, sid, ip, true))
	}
	e.metrics.Inc(MetricSessionCreated)
	e.audit.Emit(ctx, newAuditEvent(EventSessionCreated, user.UserID, sid, ip, true))

	return h, nil
}

// checkAutologinKey reports whether the key presented in req belongs to the
// claimed user and that user is still real. Only the key's hash is ever
// compared against storage.
func (e *Engine) checkAutologinKey(ctx context.Context, req Request) (bool, error) {
	hash := internal.KeyHash(req.AutologinKey)

	_, err := e.store.LookupKey(ctx, hash, req.ClaimedUserID)
	if err != nil {
		if errors.Is(err, session.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	user, err := e.directory.GetUserByID(ctx, req.ClaimedUserID, true)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// setLoginKey mints a fresh autologin secret for h's user and upserts its
// hash, replacing any previous key for that user. The plaintext survives only
// on the handle for cookie emission.
func (e *Engine) setLoginKey(ctx context.Context, h *Handle, ip string, nowUnix int64) error {
	token, err := e.auth.UniqueID(ctx, h.session.SessionID)
	if err != nil {
		return err
	}

	k := &session.Key{
		KeyHash:   internal.KeyHash(token),
		UserID:    h.user.UserID,
		LastIP:    ip,
		LastLogin: nowUnix,
	}
	if err := e.store.UpsertKey(ctx, k); err != nil {
		return err
	}

	h.loginKey = token

	e.metrics.Inc(MetricKeyRotated)
	e.audit.Emit(ctx, newAuditEvent(EventKeyRotated, h.user.UserID, h.session.SessionID, ip, true))

	return nil
}

// deleteSession removes h's row and autologin key, records the user's last
// visit when the directory supports it, and immediately replaces the session
// with a fresh anonymous one.
func (e *Engine) deleteSession(ctx context.Context, h *Handle, ip string) (*Handle, error) {
	nowUnix := e.now().Unix()

	if h.user != nil && h.user.Type.Real() {
		if rec, ok := e.directory.(LastVisitRecorder); ok {
			if err := rec.RecordLastVisit(ctx, h.user.UserID, nowUnix); err != nil {
				log.Print("goSession: last visit update failed: ", err)
			}
		}
		if err := e.store.DeleteKey(ctx, h.user.UserID); err != nil &&
			!errors.Is(err, session.ErrKeyNotFound) {
			return nil, err
		}
	}

	if err := e.store.Delete(ctx, h.session.SessionID); err != nil &&
		!errors.Is(err, session.ErrSessionNotFound) {
		return nil, err
	}

	e.metrics.Inc(MetricLogout)
	e.audit.Emit(ctx, newAuditEvent(EventLogout, h.session.UserID, h.session.SessionID, ip, true))

	return e.CreateSession(ctx, Request{RemoteAddr: ip}, CreateOptions{})
}

// collectGarbage sweeps expired sessions at most once per configured
// interval. The interval gate is advanced in storage before the sweep, so
// concurrent engines sharing a store elect a single sweeper and a crashed
// sweep costs one skipped interval, never a double run.
func (e *Engine) collectGarbage(ctx context.Context) error {
	nowUnix := e.now().Unix()
	interval := int64(e.cfg.Session.GCInterval / time.Second)

	due, err := e.store.TryAdvanceGC(ctx, nowUnix, interval)
	if err != nil || !due {
		return err
	}

	expired, err := e.store.ExpiredSessions(ctx, e.expiryPolicy(), nowUnix)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		e.metrics.Inc(MetricGCRun)
		return nil
	}

	// A user's most recent expired session doubles as their last visit.
	lastSeen := make(map[int64]int64)
	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		ids = append(ids, s.SessionID)
		if s.UserID == e.cfg.Session.AnonymousUserID {
			continue
		}
		if s.TouchedAt > lastSeen[s.UserID] {
			lastSeen[s.UserID] = s.TouchedAt
		}
	}

	if rec, ok := e.directory.(LastVisitRecorder); ok {
		for userID, when := range lastSeen {
			if err := rec.RecordLastVisit(ctx, userID, when); err != nil {
				log.Print("goSession: last visit update failed: ", err)
			}
		}
	}

	if err := e.store.DeleteSessions(ctx, ids); err != nil {
		return err
	}

	e.metrics.Inc(MetricGCRun)
	e.metrics.Add(MetricGCDeleted, uint64(len(ids)))

	ev := newAuditEvent(EventGCRun, 0, "", "", true)
	ev.Metadata = map[string]string{"deleted": fmt.Sprint(len(ids))}
	e.audit.Emit(ctx, ev)

	return nil
}

// Metrics returns the engine's counter set. It is never nil.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms for exporters.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Authenticator exposes the credential-validation layer for hosts that need
// to validate a login without creating a session.
func (e *Engine) Authenticator() *Authenticator {
	return e.auth
}

// Close flushes and stops the audit pipeline. The engine must not be used
// afterwards.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.audit.Close()
	})
}

func (e *Engine) expiryPolicy() session.ExpiryPolicy {
	return session.ExpiryPolicy{
		SessionLength:    int64(e.cfg.Session.Length / time.Second),
		AllowAutologin:   e.cfg.Autologin.Allow,
		MaxAutologinDays: int64(e.cfg.Autologin.MaxDays),
	}
}

func (e *Engine) clientIP(ctx context.Context, req Request) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return req.RemoteAddr
}

// ipMatches compares the first octets components of two dotted IPv4
// addresses. octets 0 disables the check entirely; a session with no stored
// address never matches once checking is on.
func ipMatches(octets int, reqIP, sessIP string) bool {
	if octets <= 0 {
		return true
	}
	if octets > 4 {
		octets = 4
	}
	if reqIP == "" || sessIP == "" {
		return false
	}

	a := strings.Split(reqIP, ".")
	b := strings.Split(sessIP, ".")
	if len(a) < octets || len(b) < octets {
		return false
	}
	for i := 0; i < octets; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
