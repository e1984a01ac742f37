package goSession

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the session engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserBlocked is an exported constant or variable used by the session engine.
	ErrUserBlocked = errors.New("user blocked")
	// ErrUserNotFound is an exported constant or variable used by the session engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrHookRejected is returned when credentials matched but the
	// post-authentication hook refused the login for business reasons.
	ErrHookRejected = errors.New("login rejected by post-authentication hook")
	// ErrAnonymousUserMissing is fatal: the engine cannot mint sessions at
	// all without the anonymous sentinel account.
	ErrAnonymousUserMissing = errors.New("anonymous user record missing")
	// ErrNoSuchMethod is an exported constant or variable used by the session engine.
	ErrNoSuchMethod = errors.New("no such auth method")
	// ErrUnknownDriver is an exported constant or variable used by the session engine.
	ErrUnknownDriver = errors.New("auth method driver not registered")
	// ErrNoActiveMethods is an exported constant or variable used by the session engine.
	ErrNoActiveMethods = errors.New("no active auth methods")
	// ErrVariableName is an exported constant or variable used by the session engine.
	ErrVariableName = errors.New("session variable name invalid")
	// ErrAssertDisabled is an exported constant or variable used by the session engine.
	ErrAssertDisabled = errors.New("session assertions disabled")
	// ErrAssertAnonymous is an exported constant or variable used by the session engine.
	ErrAssertAnonymous = errors.New("cannot assert an anonymous session")
	// ErrEngineNotReady is an exported constant or variable used by the session engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
