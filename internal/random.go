package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"
)

// tokenRandBytes is the minimum amount of CSPRNG material mixed into every
// token. The random block is what keeps tokens unguessable even when two
// processes draw the same serial concurrently.
const tokenRandBytes = 24

// UniqueToken derives an opaque hex token from the persisted serial, the
// process ID, a block of cryptographically strong random bytes, and an
// optional caller seed. The serial and PID only provide uniqueness across
// well-behaved processes; unpredictability comes entirely from the random
// block.
func UniqueToken(serial uint64, seed string) (string, error) {
	var buf [8 + 4 + tokenRandBytes]byte

	binary.BigEndian.PutUint64(buf[:8], serial)
	binary.BigEndian.PutUint32(buf[8:12], uint32(os.Getpid()))
	if _, err := rand.Read(buf[12:]); err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(buf[:])
	h.Write([]byte(seed))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SessionID folds a token into the 32-hex-char identifier stored in the
// session table and carried by the session cookie.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// KeyHash is the one-way hash applied to autologin key plaintext before
// storage. Cookies carry the plaintext; lookups hash then compare.
func KeyHash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
