package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func newEdManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	m, err := NewManager(Config{
		TTL:           ttl,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "goSession-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestEd25519RoundTrip(t *testing.T) {
	m := newEdManager(t, 5*time.Minute)

	token, err := m.Issue(42, "0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UID != 42 {
		t.Errorf("uid = %d, want 42", claims.UID)
	}
	if claims.SID != "0123456789abcdef0123456789abcdef" {
		t.Errorf("sid = %q, want the issued session id", claims.SID)
	}
	if claims.Subject != "42" {
		t.Errorf("subject = %q, want %q", claims.Subject, "42")
	}
	if claims.Issuer != "goSession-test" {
		t.Errorf("issuer = %q, want %q", claims.Issuer, "goSession-test")
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue(7, "sid-hs256")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UID != 7 || claims.SID != "sid-hs256" {
		t.Errorf("claims = uid %d sid %q, want uid 7 sid %q", claims.UID, claims.SID, "sid-hs256")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := newEdManager(t, time.Nanosecond)

	token, err := m.Issue(42, "sid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := m.Verify(token); err == nil {
		t.Error("expired token verified, want error")
	}
}

func TestVerifyRejectsForeignAlgorithm(t *testing.T) {
	ed := newEdManager(t, 5*time.Minute)

	hs, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := hs.Issue(42, "sid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ed.Verify(token); err == nil {
		t.Error("hs256 token verified by ed25519 manager, want error")
	}
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	a := newEdManager(t, 5*time.Minute)
	b := newEdManager(t, 5*time.Minute)

	token, err := a.Issue(42, "sid")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := b.Verify(token); err == nil {
		t.Error("token verified under a different keypair, want error")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "zero TTL",
			cfg:  Config{SigningMethod: MethodHS256, PrivateKey: []byte("secret")},
		},
		{
			name: "excessive leeway",
			cfg: Config{
				TTL: time.Minute, Leeway: 3 * time.Minute,
				SigningMethod: MethodHS256, PrivateKey: []byte("secret"),
			},
		},
		{
			name: "hs256 without key",
			cfg:  Config{TTL: time.Minute, SigningMethod: MethodHS256},
		},
		{
			name: "ed25519 with malformed private key",
			cfg: Config{
				TTL: time.Minute, SigningMethod: MethodEd25519,
				PrivateKey: []byte("short"), PublicKey: pub,
			},
		},
		{
			name: "ed25519 with malformed public key",
			cfg: Config{
				TTL: time.Minute, SigningMethod: MethodEd25519,
				PrivateKey: priv, PublicKey: []byte("short"),
			},
		},
		{
			name: "unknown method",
			cfg:  Config{TTL: time.Minute, SigningMethod: "rs512"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Error("invalid config accepted, want error")
			}
		})
	}
}
