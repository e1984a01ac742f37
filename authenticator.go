package goSession

import (
	"context"
	"fmt"
	"log"

	"github.com/hvolkner/goSession/internal"
	"github.com/hvolkner/goSession/session"
)

// Authenticator validates username/password pairs against the configured
// auth methods and reports the authoritative user record on success.
//
// Authenticator instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Authenticator struct {
	directory UserDirectory
	registry  *Registry
	store     session.Store
	fallback  bool
}

// NewAuthenticator wires an [Authenticator] from its collaborators. The
// store supplies the persisted serial behind [Authenticator.UniqueID].
func NewAuthenticator(directory UserDirectory, registry *Registry, store session.Store, fallback bool) *Authenticator {
	return &Authenticator{
		directory: directory,
		registry:  registry,
		store:     store,
		fallback:  fallback,
	}
}

// ValidateUser checks credentials against the user's assigned method first,
// then — when that method is absent, fails to load, or fallback mode is on —
// against every active method in ascending priority order.
//
// Failure reasons come back as typed sentinel errors ([ErrUserBlocked],
// [ErrInvalidCredentials], [ErrHookRejected]); the caller decides how much
// detail to expose to the end user.
//
// ValidateUser may return an error when input validation, dependency calls, or security checks fail.
// ValidateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (a *Authenticator) ValidateUser(ctx context.Context, username, password string) (*UserRecord, error) {
	blocked, err := a.directory.IsUserBlocked(ctx, username)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrUserBlocked
	}

	assigned := 0
	if user, err := a.directory.GetUserByUsername(ctx, username, false); err != nil {
		return nil, err
	} else if user != nil {
		assigned = user.AuthMethod
	}

	winner := 0
	authenticated := false
	tryAll := assigned == 0 || a.fallback

	if assigned != 0 {
		method, err := a.registry.LoadMethod(assigned)
		if err != nil || method == nil {
			// Assigned method gone or unloadable: fall back to the full
			// list regardless of the fallback flag.
			tryAll = true
		} else {
			ok, err := method.Authenticate(ctx, username, password)
			if err != nil {
				log.Printf("goSession: assigned auth method %d failed: %v", assigned, err)
			}
			if ok {
				authenticated = true
				winner = assigned
			}
		}
	}

	if !authenticated && tryAll {
		for _, id := range a.registry.AvailableMethods(true) {
			if id == assigned {
				continue
			}
			method, err := a.registry.LoadMethod(id)
			if err != nil || method == nil {
				continue
			}
			ok, err := method.Authenticate(ctx, username, password)
			if err != nil {
				log.Printf("goSession: auth method %d failed: %v", id, err)
				continue
			}
			if ok {
				authenticated = true
				winner = id
				break
			}
		}
	}

	if !authenticated {
		return nil, ErrInvalidCredentials
	}

	// Remember the winning method so the next login skips straight to it.
	// Best-effort: the login itself already succeeded.
	if winner != assigned {
		if err := a.directory.SetAuthMethodFor(ctx, username, winner); err != nil {
			log.Printf("goSession: auth method assignment update failed: %v", err)
		}
	}

	if err := a.directory.PostAuthHook(ctx, username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHookRejected, err)
	}

	user, err := a.directory.GetUserByUsername(ctx, username, false)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// UniqueID derives an opaque token from the store's atomically incremented
// serial, the process ID, at least 24 bytes of cryptographic randomness,
// and the optional caller seed. The counter increment in the original
// design raced under concurrency and leaned on the random block to stay
// collision-free; both backends here increment atomically, and the random
// block stays anyway.
//
// UniqueID may return an error when input validation, dependency calls, or security checks fail.
func (a *Authenticator) UniqueID(ctx context.Context, extraSeed string) (string, error) {
	serial, err := a.store.NextSerial(ctx)
	if err != nil {
		return "", err
	}
	return internal.UniqueToken(serial, extraSeed)
}
