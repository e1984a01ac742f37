package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hvolkner/goSession/session"
)

// Handle is the per-request view of one live session. A Handle is produced
// by [Engine.Initialize] or [Engine.CreateSession], belongs to a single
// request, and must not be shared between goroutines.
type Handle struct {
	engine  *Engine
	session *session.Session
	user    *UserRecord

	// loginKey holds the plaintext autologin secret when one was minted
	// during this request. It exists only here; storage keeps the hash.
	loginKey string
}

// Session returns the underlying session row. Callers must treat it as
// read-only.
func (h *Handle) Session() *session.Session {
	return h.session
}

// User returns the account record the session is bound to. For a visitor
// this is the anonymous user, never nil.
func (h *Handle) User() *UserRecord {
	return h.user
}

// LoginKey returns the plaintext autologin secret minted during this
// request, or an empty string when no rotation happened.
func (h *Handle) LoginKey() string {
	return h.loginKey
}

// Cookies renders the session's client credentials as HTTP cookies. The
// session ID and user ID cookies always carry the current session's values;
// the engine requires the user ID back on resume, so a bare leaked session
// ID is not enough to take over a session. The key cookie is set only when a
// key was minted this request, cleared when the session is not persistent,
// and left untouched on a resumed persistent session.
//
// Cookies does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handle) Cookies() []*http.Cookie {
	cfg := h.engine.cfg
	maxAge := cfg.cookieLifetimeDays() * 86400

	cookies := []*http.Cookie{
		h.cookie(cfg.Cookie.Name+"_sid", h.session.SessionID, maxAge),
		h.cookie(cfg.Cookie.Name+"_uid", strconv.FormatInt(h.session.UserID, 10), maxAge),
	}

	switch {
	case h.loginKey != "":
		cookies = append(cookies, h.cookie(cfg.Cookie.Name+"_key", h.loginKey, maxAge))
	case !h.session.Autologin:
		cookies = append(cookies, h.cookie(cfg.Cookie.Name+"_key", "", -1))
	}

	return cookies
}

func (h *Handle) cookie(name, value string, maxAge int) *http.Cookie {
	cfg := h.engine.cfg.Cookie
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login validates the credentials through the configured auth methods and,
// on success, replaces this session with a fresh one bound to the user.
// persist requests an autologin key; it is honored only when autologin is
// globally enabled. The old session row is discarded, its variables with it.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
func (h *Handle) Login(ctx context.Context, username, password string, persist bool) (*Handle, error) {
	ip := h.session.IP

	user, err := h.engine.auth.ValidateUser(ctx, username, password)
	if err != nil {
		h.engine.metrics.Inc(MetricLoginFailure)
		ev := newAuditEvent(EventLoginFailure, 0, h.session.SessionID, ip, false)
		ev.Error = err.Error()
		ev.Metadata = map[string]string{"username": username}
		h.engine.audit.Emit(ctx, ev)
		return nil, err
	}

	// The pre-login row is gone for good: session fixation ends here.
	if err := h.engine.store.Delete(ctx, h.session.SessionID); err != nil &&
		!isNotFound(err) {
		return nil, err
	}

	next, err := h.engine.CreateSession(ctx, Request{RemoteAddr: ip}, CreateOptions{
		UserID:  user.UserID,
		Persist: persist,
	})
	if err != nil {
		return nil, err
	}

	h.engine.metrics.Inc(MetricLoginSuccess)
	h.engine.audit.Emit(ctx, newAuditEvent(EventLoginSuccess, user.UserID, next.session.SessionID, ip, true))

	return next, nil
}

// Logout destroys this session and its autologin key and returns the fresh
// anonymous session that replaces it.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
func (h *Handle) Logout(ctx context.Context) (*Handle, error) {
	return h.engine.deleteSession(ctx, h, h.session.IP)
}

// GetVariable reads a session variable. The second result reports whether
// the variable exists.
//
// GetVariable may return an error when input validation, dependency calls, or security checks fail.
func (h *Handle) GetVariable(ctx context.Context, name string) (string, bool, error) {
	if err := checkVarName(name); err != nil {
		return "", false, err
	}
	return h.engine.store.GetVariable(ctx, h.session.SessionID, name)
}

// SetVariable writes a session variable, overwriting any previous value.
//
// SetVariable may return an error when input validation, dependency calls, or security checks fail.
func (h *Handle) SetVariable(ctx context.Context, name, value string) error {
	if err := checkVarName(name); err != nil {
		return err
	}
	return h.engine.store.SetVariable(ctx, h.session.SessionID, name, value)
}

// ClearVariable removes a session variable. Clearing an absent variable is
// not an error.
//
// ClearVariable may return an error when input validation, dependency calls, or security checks fail.
func (h *Handle) ClearVariable(ctx context.Context, name string) error {
	if err := checkVarName(name); err != nil {
		return err
	}
	return h.engine.store.DeleteVariable(ctx, h.session.SessionID, name)
}

// Assert issues a short-lived signed token attesting that this session
// belongs to its user, for handing to backend services. Assertions must be
// enabled in the config and are refused for anonymous sessions.
//
// Assert may return an error when input validation, dependency calls, or security checks fail.
func (h *Handle) Assert(ctx context.Context) (string, error) {
	if h.engine.assert == nil {
		return "", ErrAssertDisabled
	}
	if !h.user.Type.Real() {
		return "", ErrAssertAnonymous
	}

	token, err := h.engine.assert.Issue(h.user.UserID, h.session.SessionID)
	if err != nil {
		return "", err
	}

	h.engine.metrics.Inc(MetricAssertIssued)
	return token, nil
}

func checkVarName(name string) error {
	if name == "" || len(name) > session.VarNameMaxLen {
		return fmt.Errorf("%w: %q", ErrVariableName, name)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrKeyNotFound)
}
