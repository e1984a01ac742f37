package goSession

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// passwordMethod authenticates against bcrypt hashes stored in the user
// directory. The stored format is the versioned, cost-annotated bcrypt
// string ($2a$/$2b$ prefix, two-digit cost, 22-char salt, derived hash in
// the bcrypt base64 alphabet), which x/crypto/bcrypt parses natively.
type passwordMethod struct {
	source PasswordSource
}

func newPasswordMethod(deps MethodDeps, _ map[string]string) (AuthMethod, error) {
	source, ok := deps.Directory.(PasswordSource)
	if !ok {
		return nil, errors.New("password method requires a directory implementing PasswordSource")
	}
	return &passwordMethod{source: source}, nil
}

// Authenticate compares the supplied password against the stored hash.
// Every failure mode — no stored hash, malformed hash, wrong password — is
// a silent false: the caller cannot tell "wrong password" from "method does
// not apply".
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *passwordMethod) Authenticate(ctx context.Context, username, password string) (bool, error) {
	hash, ok, err := m.source.PasswordHashFor(ctx, username)
	if err != nil {
		return false, err
	}
	if !ok || !strings.HasPrefix(hash, "$2") {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// HashPassword produces a stored-format bcrypt hash for the given cost.
// Hosts use it when provisioning accounts the password method can verify.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
